package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://ollama:11434")
	t.Setenv("OLLAMA_BACKEND_MODEL", "mistral:7b")
	t.Setenv("PROJEXA_PROBE_INTERVAL", "250ms")
	t.Setenv("PROJEXA_PROBE_ATTEMPTS", "10")
	t.Setenv("PROJEXA_OLLAMA_TIMEOUT_S", "30")
	t.Setenv("PROJEXA_PORT", "9001")
	t.Setenv("PROJEXA_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PROJEXA_SERVER_CMD", "gunicorn app:app")

	cfg := Default()
	applyEnv(&cfg)

	if cfg.OllamaHost != "http://ollama:11434" {
		t.Fatalf("ollama host: %q", cfg.OllamaHost)
	}
	if cfg.BackendModel != "mistral:7b" {
		t.Fatalf("model: %q", cfg.BackendModel)
	}
	if cfg.ProbeInterval != 250*time.Millisecond || cfg.ProbeAttempts != 10 {
		t.Fatalf("probe settings: %v / %d", cfg.ProbeInterval, cfg.ProbeAttempts)
	}
	if cfg.PullTimeout != 30*time.Second {
		t.Fatalf("pull timeout: %v", cfg.PullTimeout)
	}
	if cfg.BindPort != 9001 {
		t.Fatalf("port: %d", cfg.BindPort)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors origins: %v", cfg.CORSOrigins)
	}
	if len(cfg.ServerCmd) != 2 || cfg.ServerCmd[0] != "gunicorn" {
		t.Fatalf("server cmd: %v", cfg.ServerCmd)
	}
}

func TestApplyEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("PROJEXA_PROBE_ATTEMPTS", "not-a-number")
	t.Setenv("PROJEXA_PROBE_INTERVAL", "-5s")
	cfg := Default()
	applyEnv(&cfg)
	if cfg.ProbeAttempts != 60 || cfg.ProbeInterval != time.Second {
		t.Fatalf("garbage env should keep defaults, got %d / %v", cfg.ProbeAttempts, cfg.ProbeInterval)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.OllamaHost = "" }},
		{"empty model", func(c *Config) { c.BackendModel = "" }},
		{"empty backend cmd", func(c *Config) { c.BackendCmd = nil }},
		{"empty server cmd", func(c *Config) { c.ServerCmd = nil }},
		{"zero interval", func(c *Config) { c.ProbeInterval = 0 }},
		{"zero attempts", func(c *Config) { c.ProbeAttempts = 0 }},
		{"negative attempts", func(c *Config) { c.ProbeAttempts = -1 }},
		{"zero pull timeout", func(c *Config) { c.PullTimeout = 0 }},
		{"bad port", func(c *Config) { c.BindPort = 70000 }},
		{"zero max bytes", func(c *Config) { c.MaxBytes = 0 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestForegroundArgv(t *testing.T) {
	cfg := Default()
	cfg.ServerCmd = []string{"uvicorn", "main:app"}
	cfg.BindHost = "0.0.0.0"
	cfg.BindPort = 8000
	cfg.KeepAliveS = 75
	got := strings.Join(cfg.ForegroundArgv(), " ")
	want := "uvicorn main:app --host 0.0.0.0 --port 8000 --timeout-keep-alive 75"
	if got != want {
		t.Fatalf("argv = %q, want %q", got, want)
	}
	// Building argv must not mutate the configured command.
	if len(cfg.ServerCmd) != 2 {
		t.Fatalf("server cmd mutated: %v", cfg.ServerCmd)
	}
}

func TestPassthroughEnv(t *testing.T) {
	cfg := Default()
	cfg.MaxBytes = 1024
	cfg.PullTimeout = 45 * time.Second
	env := cfg.PassthroughEnv()
	find := func(prefix string) string {
		for _, kv := range env {
			if strings.HasPrefix(kv, prefix) {
				return strings.TrimPrefix(kv, prefix)
			}
		}
		t.Fatalf("missing %q in %v", prefix, env)
		return ""
	}
	if v := find("PROJEXA_MAX_BYTES="); v != "1024" {
		t.Fatalf("max bytes: %q", v)
	}
	if v := find("PROJEXA_OLLAMA_TIMEOUT_S="); v != "45" {
		t.Fatalf("pull timeout seconds: %q", v)
	}
	if v := find("OLLAMA_HOST="); v != cfg.OllamaHost {
		t.Fatalf("ollama host: %q", v)
	}
}

func TestStartupBudget(t *testing.T) {
	cfg := Default()
	cfg.ProbeInterval = time.Second
	cfg.ProbeAttempts = 60
	cfg.PullTimeout = 60 * time.Second
	if got := cfg.StartupBudget(); got != 120*time.Second {
		t.Fatalf("budget = %v", got)
	}
}

func TestResolvePrecedence(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "backend_model: from-file\nbind_port: 9100\n")
	t.Setenv("OLLAMA_BACKEND_MODEL", "from-env")
	cfg, err := Resolve(p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.BackendModel != "from-env" {
		t.Fatalf("env should win over file, got %q", cfg.BackendModel)
	}
	if cfg.BindPort != 9100 {
		t.Fatalf("file should win over default, got %d", cfg.BindPort)
	}
}
