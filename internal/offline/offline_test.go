package offline

import (
	"testing"
	"time"
)

func TestManager_StartsOnline(t *testing.T) {
	m := New()
	if !m.Online() {
		t.Error("expected manager to start online")
	}
}

func TestManager_QueueWhileOffline(t *testing.T) {
	now := time.Now()
	m := New(WithClock(func() time.Time { return now }))
	m.SetOnline(false)

	m.Enqueue("Hello", "en", "es")
	m.Enqueue("Bye", "en", "es")

	if m.Pending() != 2 {
		t.Errorf("Pending = %d, want 2", m.Pending())
	}
}

func TestManager_ReconnectClearsQueueWithoutReplay(t *testing.T) {
	m := New()
	m.SetOnline(false)
	m.Enqueue("Hello", "en", "es")

	m.SetOnline(true)
	if m.Pending() != 0 {
		t.Errorf("Pending = %d after reconnect, want 0", m.Pending())
	}
}

func TestManager_DrainReturnsQueued(t *testing.T) {
	now := time.Now()
	m := New(WithClock(func() time.Time { return now }))
	m.SetOnline(false)
	m.Enqueue("Hello", "en", "es")

	q := m.Drain()
	if len(q) != 1 {
		t.Fatalf("Drain returned %d entries", len(q))
	}
	if q[0].Text != "Hello" || q[0].TgtLocale != "es" || !q[0].QueuedAt.Equal(now) {
		t.Errorf("unexpected entry: %+v", q[0])
	}
	if m.Pending() != 0 {
		t.Error("queue not cleared by Drain")
	}
}

func TestManager_SetOnlineIdempotent(t *testing.T) {
	m := New()
	m.SetOnline(false)
	m.Enqueue("x", "en", "es")
	// Staying offline must not clear the queue.
	m.SetOnline(false)
	if m.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", m.Pending())
	}
}
