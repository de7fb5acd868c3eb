// Package offline tracks connectivity and queues requests made while the
// network is unavailable.
package offline

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// QueuedRequest is a translation deferred while offline.
type QueuedRequest struct {
	Text      string
	SrcLocale string
	TgtLocale string
	QueuedAt  time.Time
}

// Manager tracks the connectivity signal and the offline queue.
// Safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	online bool
	queue  []QueuedRequest
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Manager that starts online.
func New(opts ...Option) *Manager {
	m := &Manager{
		online: true,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online reports the current connectivity state.
func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a connectivity change. On the transition back to online
// the queued-request set is cleared WITHOUT resubmission: queued requests
// are not replayed against the network. Callers that want replay must Drain
// before reconnecting.
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	wasOffline := !m.online
	m.online = online
	var dropped int
	if online && wasOffline {
		dropped = len(m.queue)
		m.queue = nil
	}
	m.mu.Unlock()

	if dropped > 0 {
		m.logger.Debug("offline queue cleared on reconnect", "dropped", dropped)
	}
}

// Enqueue records a request deferred while offline.
func (m *Manager) Enqueue(text, srcLocale, tgtLocale string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, QueuedRequest{
		Text:      text,
		SrcLocale: srcLocale,
		TgtLocale: tgtLocale,
		QueuedAt:  m.now(),
	})
}

// Pending returns the number of queued requests.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Drain empties the queue and returns what was queued.
func (m *Manager) Drain() []QueuedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}
