package dedup

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if got := Key("Hello", "en", "es"); got != "Hello|en|es" {
		t.Errorf("Key = %q", got)
	}
}

func TestGroup_ConcurrentCallsShareOneExecution(t *testing.T) {
	var g Group
	var calls atomic.Int32
	release := make(chan struct{})

	const n = 5
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = g.Do("Hello|en|es", func() (string, error) {
				calls.Add(1)
				<-release
				return "Hola", nil
			})
		}(i)
	}

	// Give every goroutine time to reach the registry before the first
	// call is allowed to settle.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("underlying fetch ran %d times, want 1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d error: %v", i, errs[i])
		}
		if results[i] != "Hola" {
			t.Errorf("caller %d result = %q", i, results[i])
		}
	}
}

func TestGroup_KeyReleasedAfterSettle(t *testing.T) {
	var g Group
	var calls atomic.Int32

	fetch := func() (string, error) {
		calls.Add(1)
		return "Hola", nil
	}

	if _, _, err := g.Do("k", fetch); err != nil {
		t.Fatal(err)
	}
	if _, _, err := g.Do("k", fetch); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("sequential calls ran %d fetches, want 2", got)
	}
}

func TestGroup_FailureReleasesKey(t *testing.T) {
	var g Group
	boom := errors.New("boom")

	_, _, err := g.Do("k", func() (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _, err := g.Do("k", func() (string, error) { return "Hola", nil })
	if err != nil || got != "Hola" {
		t.Errorf("retry after failure = %q, %v", got, err)
	}
}
