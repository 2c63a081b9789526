package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"projexainit/internal/ollama"
)

// Puller is the slice of the Ollama client the runner needs.
type Puller interface {
	Pull(ctx context.Context, model string, progress func(ollama.PullProgress)) error
}

// Runner performs the one-shot model pull. Ollama's pull is idempotent: a
// model that is already present streams straight to success, so running this
// on every container start is cheap and safe.
type Runner struct {
	client  Puller
	timeout time.Duration
	log     zerolog.Logger
}

// New builds a Runner bounded by timeout per EnsureModel call.
func New(client Puller, timeout time.Duration, log zerolog.Logger) *Runner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner{client: client, timeout: timeout, log: log.With().Str("component", "provision").Logger()}
}

// EnsureModel pulls the named model, logging progress. The returned error is
// advisory: callers on the startup path log it and continue, because a
// missing optional model must never prevent the service from coming up.
func (r *Runner) EnsureModel(ctx context.Context, model string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	r.log.Info().Str("model", model).Dur("timeout", r.timeout).Msg("ensuring backend model")

	lastStatus := ""
	err := r.client.Pull(ctx, model, func(p ollama.PullProgress) {
		if p.Status != lastStatus {
			lastStatus = p.Status
			r.log.Debug().Str("model", model).Str("status", p.Status).Msg("pull progress")
		} else if p.Total > 0 {
			r.log.Trace().Str("model", model).Str("digest", p.Digest).
				Int64("completed", p.Completed).Int64("total", p.Total).Msg("pull progress")
		}
	})
	if err != nil {
		return fmt.Errorf("ensuring model %s: %w", model, err)
	}
	r.log.Info().Str("model", model).Dur("elapsed", time.Since(start)).Msg("backend model present")
	return nil
}
