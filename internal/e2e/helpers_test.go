package e2e

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"projexainit/internal/config"
	"projexainit/internal/mockollama"
	"projexainit/internal/ollama"
	"projexainit/internal/probe"
	"projexainit/internal/provision"
	"projexainit/internal/supervisor"
)

// execRecord captures what the stubbed hand-off saw.
type execRecord struct {
	called bool
	argv0  string
	argv   []string
	env    []string
}

// newMockBackend starts a mock Ollama daemon and returns it with its URL.
func newMockBackend(t *testing.T, opts mockollama.Options) (*mockollama.Server, string) {
	t.Helper()
	mock := mockollama.New(opts)
	ts := httptest.NewServer(mock.Handler())
	t.Cleanup(ts.Close)
	return mock, ts.URL
}

// newEntrypoint wires a full supervisor against the mock backend with real
// prober and provisioner, stubbing only the process-level seams.
func newEntrypoint(t *testing.T, cfg config.Config, rec *execRecord, execErr error) *supervisor.Supervisor {
	t.Helper()
	log := zerolog.Nop()
	client := ollama.New(cfg.OllamaHost)
	p, err := probe.New(cfg.ReadinessURL(), cfg.ProbeInterval, cfg.ProbeAttempts, cfg.ProbeTimeout)
	if err != nil {
		t.Fatalf("prober: %v", err)
	}
	runner := provision.New(client, cfg.PullTimeout, log)
	return supervisor.New(cfg, log, p, runner,
		supervisor.WithStartBackend(func(argv []string) (int, error) {
			// The "daemon" is the httptest server; nothing to launch.
			return 1, nil
		}),
		supervisor.WithLookPath(func(file string) (string, error) {
			if execErr != nil {
				return "", execErr
			}
			return "/usr/bin/" + file, nil
		}),
		supervisor.WithExec(func(argv0 string, argv, env []string) error {
			rec.called = true
			rec.argv0 = argv0
			rec.argv = argv
			rec.env = env
			return nil
		}),
	)
}

// fastConfig returns a config tuned for test speed.
func fastConfig(url string) config.Config {
	cfg := config.Default()
	cfg.OllamaHost = url
	cfg.ProbeInterval = 20 * time.Millisecond
	cfg.ProbeAttempts = 60
	cfg.ProbeTimeout = time.Second
	cfg.PullTimeout = 5 * time.Second
	cfg.BackendModel = "llama3.2:3b"
	return cfg
}
