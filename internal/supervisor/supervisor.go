package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"projexainit/internal/config"
	"projexainit/internal/probe"
)

// State enumerates the one-shot startup sequence. States advance strictly
// forward; nothing is retried or revisited.
type State int

const (
	StateInit State = iota
	StateBackendStarting
	StateAwaitingReadiness
	StateProvisioning
	StateHandingOff
	StateReplaced
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateBackendStarting:
		return "backend-starting"
	case StateAwaitingReadiness:
		return "awaiting-readiness"
	case StateProvisioning:
		return "provisioning"
	case StateHandingOff:
		return "handing-off"
	case StateReplaced:
		return "replaced"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ReadinessProber reports whether the backend came up within its budget.
type ReadinessProber interface {
	Wait(ctx context.Context) probe.Outcome
}

// Provisioner performs the one-shot setup action against the backend.
type Provisioner interface {
	EnsureModel(ctx context.Context, model string) error
}

// Supervisor drives container startup: launch the backend daemon, wait for
// it to answer, best-effort pull the backend model, then replace this
// process with the foreground server. Only the hand-off can fail fatally.
type Supervisor struct {
	cfg    config.Config
	log    zerolog.Logger
	prober ReadinessProber
	prov   Provisioner

	state   State
	history []State

	// Seams for tests; production defaults launch a real child process and
	// replace the process image.
	startBackend func(argv []string) (int, error)
	lookPath     func(file string) (string, error)
	execImage    func(argv0 string, argv, env []string) error
	environ      func() []string
}

// Option adjusts a Supervisor, mainly to stub process-level effects in tests.
type Option func(*Supervisor)

// WithStartBackend replaces the backend launcher.
func WithStartBackend(fn func(argv []string) (int, error)) Option {
	return func(s *Supervisor) { s.startBackend = fn }
}

// WithExec replaces the process-image hand-off.
func WithExec(fn func(argv0 string, argv, env []string) error) Option {
	return func(s *Supervisor) { s.execImage = fn }
}

// WithLookPath replaces foreground command resolution.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(s *Supervisor) { s.lookPath = fn }
}

// WithEnviron replaces the inherited environment source.
func WithEnviron(fn func() []string) Option {
	return func(s *Supervisor) { s.environ = fn }
}

// New builds a Supervisor in StateInit.
func New(cfg config.Config, log zerolog.Logger, prober ReadinessProber, prov Provisioner, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		log:      log.With().Str("component", "supervisor").Logger(),
		prober:   prober,
		prov:     prov,
		state:    StateInit,
		history:  []State{StateInit},
		lookPath: exec.LookPath,
		execImage: func(argv0 string, argv, env []string) error {
			return execProcess(argv0, argv, env)
		},
		environ: os.Environ,
	}
	s.startBackend = s.launchBackend
	for _, o := range opts {
		o(s)
	}
	return s
}

// State reports the current state.
func (s *Supervisor) State() State { return s.state }

// History reports every state entered so far, in order.
func (s *Supervisor) History() []State {
	return append([]State(nil), s.history...)
}

func (s *Supervisor) setState(next State) {
	s.log.Debug().Stringer("from", s.state).Stringer("to", next).Msg("state transition")
	s.state = next
	s.history = append(s.history, next)
}

// Run executes the startup sequence. The returned error is non-nil only for
// hand-off failure or external cancellation; every other problem is logged
// and absorbed so the container still comes up.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setState(StateBackendStarting)
	if pid, err := s.startBackend(s.cfg.BackendCmd); err != nil {
		// A backend that cannot start looks exactly like a backend that is
		// slow to come up: the probe budget runs out and startup continues.
		s.log.Warn().Err(err).Strs("argv", s.cfg.BackendCmd).Msg("backend launch failed; continuing")
	} else {
		s.log.Info().Int("pid", pid).Strs("argv", s.cfg.BackendCmd).Msg("backend launched")
	}

	s.setState(StateAwaitingReadiness)
	outcome := s.prober.Wait(ctx)
	if err := ctx.Err(); err != nil {
		s.setState(StateAborted)
		return err
	}
	switch outcome {
	case probe.Ready:
		s.log.Info().Str("url", s.cfg.ReadinessURL()).Msg("backend ready")
	default:
		s.log.Warn().Str("url", s.cfg.ReadinessURL()).
			Dur("budget", s.cfg.ProbeInterval*time.Duration(s.cfg.ProbeAttempts)).
			Msg("backend readiness budget exhausted; continuing anyway")
	}

	s.setState(StateProvisioning)
	if err := s.prov.EnsureModel(ctx, s.cfg.BackendModel); err != nil {
		s.log.Warn().Err(err).Str("model", s.cfg.BackendModel).Msg("model provisioning failed; continuing")
	}
	if err := ctx.Err(); err != nil {
		s.setState(StateAborted)
		return err
	}

	s.setState(StateHandingOff)
	argv := s.cfg.ForegroundArgv()
	path, err := s.lookPath(argv[0])
	if err != nil {
		s.setState(StateAborted)
		return fmt.Errorf("locating foreground command %q: %w", argv[0], err)
	}
	env := append(s.environ(), s.cfg.PassthroughEnv()...)
	s.log.Info().Str("path", path).Strs("argv", argv).Msg("handing off to foreground service")
	if err := s.execImage(path, argv, env); err != nil {
		s.setState(StateAborted)
		return fmt.Errorf("executing foreground command %q: %w", path, err)
	}
	// Reached only when the exec seam is stubbed (tests) or on platforms
	// where the hand-off relays instead of replacing.
	s.setState(StateReplaced)
	return nil
}
