package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Outcome is the result of a full probe loop. Individual probe failures are
// never surfaced; the loop only distinguishes "became ready" from "budget
// exhausted".
type Outcome int

const (
	Ready Outcome = iota
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Attempt describes a single probe for the progress callback.
type Attempt struct {
	Number     int
	StatusCode int
	Err        error
	Elapsed    time.Duration
}

// Prober polls one liveness endpoint on a fixed schedule. Probes are GETs
// with a per-attempt timeout; any 2xx response counts as ready. Probing is
// read-only against the endpoint and holds no resources between attempts.
type Prober struct {
	url         string
	interval    time.Duration
	maxAttempts int
	client      *http.Client
	onAttempt   func(Attempt)
}

// Option tweaks a Prober.
type Option func(*Prober)

// WithHTTPClient substitutes the probe HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Prober) { p.client = c }
}

// WithAttemptFunc installs a per-attempt progress callback.
func WithAttemptFunc(fn func(Attempt)) Option {
	return func(p *Prober) { p.onAttempt = fn }
}

// New validates the schedule and builds a Prober. interval and maxAttempts
// bound the worst-case wait at interval*maxAttempts plus per-probe overhead.
func New(url string, interval time.Duration, maxAttempts int, timeout time.Duration, opts ...Option) (*Prober, error) {
	if url == "" {
		return nil, fmt.Errorf("probe url must not be empty")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("probe interval must be positive, got %v", interval)
	}
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("probe attempts must be positive, got %d", maxAttempts)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	p := &Prober{
		url:         url,
		interval:    interval,
		maxAttempts: maxAttempts,
		client:      &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Wait runs the probe loop: one attempt per interval until the endpoint
// answers 2xx or the attempt budget is spent. Cancellation of ctx stops the
// loop early and reports TimedOut.
func (p *Prober) Wait(ctx context.Context) Outcome {
	for i := 1; i <= p.maxAttempts; i++ {
		att := p.check(ctx, i)
		if p.onAttempt != nil {
			p.onAttempt(att)
		}
		if att.Err == nil {
			return Ready
		}
		if i == p.maxAttempts {
			break
		}
		select {
		case <-time.After(p.interval):
		case <-ctx.Done():
			return TimedOut
		}
	}
	return TimedOut
}

// check issues one GET against the endpoint. The response body is drained and
// closed so the loop never accumulates dangling connections.
func (p *Prober) check(ctx context.Context, number int) Attempt {
	start := time.Now()
	att := Attempt{Number: number}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		att.Err = err
		att.Elapsed = time.Since(start)
		return att
	}
	resp, err := p.client.Do(req)
	if err != nil {
		att.Err = err
		att.Elapsed = time.Since(start)
		return att
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	att.StatusCode = resp.StatusCode
	att.Elapsed = time.Since(start)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		att.Err = fmt.Errorf("status %d", resp.StatusCode)
	}
	return att
}
