package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitReadyImmediately(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, err := New(srv.URL, 10*time.Millisecond, 5, time.Second)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := p.Wait(context.Background()); got != Ready {
		t.Fatalf("outcome = %v, want Ready", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("probe calls = %d, want 1", hits.Load())
	}
}

func TestWaitReadyOnAttemptK(t *testing.T) {
	const k = 3
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < k {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var attempts []Attempt
	p, err := New(srv.URL, 5*time.Millisecond, 60, time.Second, WithAttemptFunc(func(a Attempt) {
		attempts = append(attempts, a)
	}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := p.Wait(context.Background()); got != Ready {
		t.Fatalf("outcome = %v, want Ready", got)
	}
	if hits.Load() != k {
		t.Fatalf("probe calls = %d, want %d", hits.Load(), k)
	}
	if len(attempts) != k || attempts[k-1].Err != nil || attempts[0].Err == nil {
		t.Fatalf("unexpected attempts: %+v", attempts)
	}
	if attempts[k-1].Number != k {
		t.Fatalf("last attempt number = %d, want %d", attempts[k-1].Number, k)
	}
}

func TestWaitTimedOutAfterExactBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	const attempts = 4
	const interval = 10 * time.Millisecond
	p, err := New(srv.URL, interval, attempts, time.Second)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	start := time.Now()
	if got := p.Wait(context.Background()); got != TimedOut {
		t.Fatalf("outcome = %v, want TimedOut", got)
	}
	if hits.Load() != attempts {
		t.Fatalf("probe calls = %d, want exactly %d", hits.Load(), attempts)
	}
	// Bound: interval*attempts plus per-probe overhead. Allow generous slack
	// for slow CI but catch an unbounded loop.
	if elapsed := time.Since(start); elapsed > interval*attempts+2*time.Second {
		t.Fatalf("wait took %v, budget is %v", elapsed, interval*attempts)
	}
}

func TestWaitConnectionRefusedCountsAsMiss(t *testing.T) {
	// A closed server refuses connections; the prober must treat that like
	// any other failed attempt.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p, err := New(url, 5*time.Millisecond, 3, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := p.Wait(context.Background()); got != TimedOut {
		t.Fatalf("outcome = %v, want TimedOut", got)
	}
}

func TestWaitStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p, err := New(srv.URL, time.Hour, 100, time.Second)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	done := make(chan Outcome, 1)
	go func() { done <- p.Wait(ctx) }()
	cancel()
	select {
	case got := <-done:
		if got != TimedOut {
			t.Fatalf("outcome = %v, want TimedOut", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("wait did not return after cancel")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", time.Second, 1, time.Second); err == nil {
		t.Fatalf("expected error on empty url")
	}
	if _, err := New("http://x", 0, 1, time.Second); err == nil {
		t.Fatalf("expected error on zero interval")
	}
	if _, err := New("http://x", time.Second, 0, time.Second); err == nil {
		t.Fatalf("expected error on zero attempts")
	}
}

func TestOutcomeString(t *testing.T) {
	if Ready.String() != "ready" || TimedOut.String() != "timed-out" {
		t.Fatalf("unexpected strings: %v %v", Ready, TimedOut)
	}
}
