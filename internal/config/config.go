package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config holds every knob the entrypoint resolves once at container start.
// There is no reload path: the struct is read-only after Resolve returns.
type Config struct {
	// Backend daemon (Ollama).
	OllamaHost   string   `json:"ollama_host" yaml:"ollama_host" toml:"ollama_host"`
	BackendModel string   `json:"backend_model" yaml:"backend_model" toml:"backend_model"`
	BackendCmd   []string `json:"backend_cmd" yaml:"backend_cmd" toml:"backend_cmd"`

	// Readiness probing against the backend.
	ProbeInterval time.Duration `json:"probe_interval" yaml:"probe_interval" toml:"probe_interval"`
	ProbeAttempts int           `json:"probe_attempts" yaml:"probe_attempts" toml:"probe_attempts"`
	ProbeTimeout  time.Duration `json:"probe_timeout" yaml:"probe_timeout" toml:"probe_timeout"`

	// One-shot model pull after the backend is (or should be) up.
	PullTimeout time.Duration `json:"pull_timeout" yaml:"pull_timeout" toml:"pull_timeout"`

	// Foreground API server that replaces this process.
	ServerCmd  []string `json:"server_cmd" yaml:"server_cmd" toml:"server_cmd"`
	BindHost   string   `json:"bind_host" yaml:"bind_host" toml:"bind_host"`
	BindPort   int      `json:"bind_port" yaml:"bind_port" toml:"bind_port"`
	KeepAliveS int      `json:"keepalive_s" yaml:"keepalive_s" toml:"keepalive_s"`

	// Limits the foreground service enforces. The entrypoint only validates and
	// re-exports them; it never interprets them.
	MaxBytes       int64 `json:"max_bytes" yaml:"max_bytes" toml:"max_bytes"`
	MaxWordsOut    int   `json:"max_words_out" yaml:"max_words_out" toml:"max_words_out"`
	StreamTimeoutS int   `json:"stream_timeout_s" yaml:"stream_timeout_s" toml:"stream_timeout_s"`

	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	LogLevel    string   `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Default returns the configuration used when nothing else is specified.
// Values mirror the stock container image: a local Ollama daemon and a
// uvicorn-served API on :8000.
func Default() Config {
	return Config{
		OllamaHost:     "http://127.0.0.1:11434",
		BackendModel:   "llama3.2:3b",
		BackendCmd:     []string{"ollama", "serve"},
		ProbeInterval:  1 * time.Second,
		ProbeAttempts:  60,
		ProbeTimeout:   2 * time.Second,
		PullTimeout:    60 * time.Second,
		ServerCmd:      []string{"uvicorn", "main:app"},
		BindHost:       "0.0.0.0",
		BindPort:       8000,
		KeepAliveS:     75,
		MaxBytes:       512 * 1024,
		MaxWordsOut:    500,
		StreamTimeoutS: 120,
		CORSOrigins:    []string{"*"},
		LogLevel:       "info",
	}
}

// Resolve builds the effective configuration: defaults, then the optional
// config file, then environment variables. Flag overrides happen in cmd.
func Resolve(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("loading config file: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays recognized environment variables onto cfg. The *_S names
// are integer seconds for compatibility with the original image's env surface.
func applyEnv(cfg *Config) {
	cfg.OllamaHost = envStr("OLLAMA_HOST", cfg.OllamaHost)
	cfg.BackendModel = envStr("OLLAMA_BACKEND_MODEL", cfg.BackendModel)
	cfg.BackendCmd = envCmd("PROJEXA_BACKEND_CMD", cfg.BackendCmd)
	cfg.ServerCmd = envCmd("PROJEXA_SERVER_CMD", cfg.ServerCmd)
	cfg.ProbeInterval = envDuration("PROJEXA_PROBE_INTERVAL", cfg.ProbeInterval)
	cfg.ProbeAttempts = envInt("PROJEXA_PROBE_ATTEMPTS", cfg.ProbeAttempts)
	cfg.ProbeTimeout = envDuration("PROJEXA_PROBE_TIMEOUT", cfg.ProbeTimeout)
	if s := envInt("PROJEXA_OLLAMA_TIMEOUT_S", 0); s > 0 {
		cfg.PullTimeout = time.Duration(s) * time.Second
	}
	cfg.BindHost = envStr("PROJEXA_HOST", cfg.BindHost)
	cfg.BindPort = envInt("PROJEXA_PORT", cfg.BindPort)
	cfg.KeepAliveS = envInt("PROJEXA_KEEPALIVE_S", cfg.KeepAliveS)
	cfg.MaxBytes = envInt64("PROJEXA_MAX_BYTES", cfg.MaxBytes)
	cfg.MaxWordsOut = envInt("PROJEXA_MAX_WORDS_OUT", cfg.MaxWordsOut)
	cfg.StreamTimeoutS = envInt("PROJEXA_STREAM_TIMEOUT_S", cfg.StreamTimeoutS)
	if v := envStr("PROJEXA_CORS_ORIGINS", ""); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
}

// Validate rejects configurations the startup sequence cannot honor.
func (c Config) Validate() error {
	if c.OllamaHost == "" {
		return fmt.Errorf("ollama host must not be empty")
	}
	if c.BackendModel == "" {
		return fmt.Errorf("backend model must not be empty")
	}
	if len(c.BackendCmd) == 0 {
		return fmt.Errorf("backend command must not be empty")
	}
	if len(c.ServerCmd) == 0 {
		return fmt.Errorf("server command must not be empty")
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("probe interval must be positive, got %v", c.ProbeInterval)
	}
	if c.ProbeAttempts <= 0 {
		return fmt.Errorf("probe attempts must be positive, got %d", c.ProbeAttempts)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive, got %v", c.ProbeTimeout)
	}
	if c.PullTimeout <= 0 {
		return fmt.Errorf("pull timeout must be positive, got %v", c.PullTimeout)
	}
	if c.BindPort < 1 || c.BindPort > 65535 {
		return fmt.Errorf("bind port out of range: %d", c.BindPort)
	}
	if c.KeepAliveS < 0 {
		return fmt.Errorf("keepalive must not be negative, got %d", c.KeepAliveS)
	}
	if c.MaxBytes <= 0 {
		return fmt.Errorf("max bytes must be positive, got %d", c.MaxBytes)
	}
	if c.MaxWordsOut <= 0 {
		return fmt.Errorf("max words out must be positive, got %d", c.MaxWordsOut)
	}
	return nil
}

// ReadinessURL is the liveness endpoint probed on the backend. /api/tags is
// the cheapest call the Ollama daemon answers once it accepts connections.
func (c Config) ReadinessURL() string {
	return c.OllamaHost + "/api/tags"
}

// ForegroundArgv is the argv the entrypoint execs into: the configured server
// command plus the bind and keep-alive flags uvicorn expects.
func (c Config) ForegroundArgv() []string {
	argv := append([]string(nil), c.ServerCmd...)
	argv = append(argv,
		"--host", c.BindHost,
		"--port", strconv.Itoa(c.BindPort),
		"--timeout-keep-alive", strconv.Itoa(c.KeepAliveS),
	)
	return argv
}

// PassthroughEnv re-exports the resolved pass-through options so the
// foreground service observes the same effective values the entrypoint
// validated, even when they came from a config file.
func (c Config) PassthroughEnv() []string {
	return []string{
		"OLLAMA_HOST=" + c.OllamaHost,
		"OLLAMA_BACKEND_MODEL=" + c.BackendModel,
		"PROJEXA_MAX_BYTES=" + strconv.FormatInt(c.MaxBytes, 10),
		"PROJEXA_MAX_WORDS_OUT=" + strconv.Itoa(c.MaxWordsOut),
		"PROJEXA_STREAM_TIMEOUT_S=" + strconv.Itoa(c.StreamTimeoutS),
		"PROJEXA_OLLAMA_TIMEOUT_S=" + strconv.Itoa(int(c.PullTimeout/time.Second)),
		"PROJEXA_CORS_ORIGINS=" + joinCSV(c.CORSOrigins),
	}
}

// StartupBudget is the documented worst-case wait before hand-off: the whole
// probe loop plus one pull attempt.
func (c Config) StartupBudget() time.Duration {
	return c.ProbeInterval*time.Duration(c.ProbeAttempts) + c.PullTimeout
}
