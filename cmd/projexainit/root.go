package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"projexainit/internal/config"
	"projexainit/internal/logging"
	"projexainit/internal/mockollama"
	"projexainit/internal/ollama"
	"projexainit/internal/probe"
	"projexainit/internal/provision"
	"projexainit/internal/supervisor"
)

// buildRootCmd constructs the Cobra command tree for the entrypoint binary.
func buildRootCmd() *cobra.Command {
	var (
		cfgPath  string
		logLevel string
	)

	root := &cobra.Command{
		Use:           "projexainit",
		Short:         "Container entrypoint for the Projexa summarizer stack",
		Long:          "projexainit boots the Ollama backend, waits for it to answer, pulls the backend model, and execs into the foreground API server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "Optional config file (.yaml/.json/.toml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults LOG_LEVEL or info)")

	resolve := func(cmd *cobra.Command) (config.Config, error) {
		cfg, err := config.Resolve(cfgPath)
		if err != nil {
			return cfg, err
		}
		applyFlags(cmd, &cfg)
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		return cfg, cfg.Validate()
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full startup sequence and exec into the foreground service",
		Example: "  projexainit run\n" +
			"  projexainit run --model phi3:mini --probe-attempts 120\n" +
			"  PROJEXA_PORT=9000 projexainit run --config /etc/projexa.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve(cmd)
			if err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel)
			client := ollama.New(cfg.OllamaHost)
			p, err := probe.New(cfg.ReadinessURL(), cfg.ProbeInterval, cfg.ProbeAttempts, cfg.ProbeTimeout,
				probe.WithAttemptFunc(func(a probe.Attempt) {
					if a.Err != nil {
						log.Debug().Int("attempt", a.Number).Err(a.Err).Msg("backend not ready yet")
					}
				}))
			if err != nil {
				return err
			}
			runner := provision.New(client, cfg.PullTimeout, log)
			sup := supervisor.New(cfg, log, p, runner)
			log.Info().
				Str("ollama_host", cfg.OllamaHost).
				Str("model", cfg.BackendModel).
				Dur("startup_budget", cfg.StartupBudget()).
				Msg("starting up")
			return sup.Run(cmd.Context())
		},
	}
	addStartupFlags(runCmd)

	waitCmd := &cobra.Command{
		Use:   "wait",
		Short: "Only wait for the backend to become ready; exit non-zero on timeout",
		Example: "  projexainit wait --probe-attempts 30\n" +
			"  projexainit wait --ollama-host http://ollama:11434",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve(cmd)
			if err != nil {
				return err
			}
			log := logging.Console(cfg.LogLevel)
			p, err := probe.New(cfg.ReadinessURL(), cfg.ProbeInterval, cfg.ProbeAttempts, cfg.ProbeTimeout,
				probe.WithAttemptFunc(func(a probe.Attempt) {
					if a.Err != nil {
						log.Info().Int("attempt", a.Number).Err(a.Err).Msg("still waiting")
					}
				}))
			if err != nil {
				return err
			}
			if outcome := p.Wait(cmd.Context()); outcome != probe.Ready {
				return fmt.Errorf("backend at %s not ready after %d attempts", cfg.OllamaHost, cfg.ProbeAttempts)
			}
			log.Info().Str("url", cfg.ReadinessURL()).Msg("backend ready")
			return nil
		},
	}
	addStartupFlags(waitCmd)

	pullCmd := &cobra.Command{
		Use:   "pull",
		Short: "Only pull the configured backend model",
		Example: "  projexainit pull\n" +
			"  projexainit pull --model llama3.2:3b --pull-timeout 5m",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve(cmd)
			if err != nil {
				return err
			}
			log := logging.Console(cfg.LogLevel)
			runner := provision.New(ollama.New(cfg.OllamaHost), cfg.PullTimeout, log)
			// Unlike the startup path, the explicit command reports failure
			// honestly so scripts can react to it.
			return runner.EnsureModel(cmd.Context(), cfg.BackendModel)
		},
	}
	addStartupFlags(pullCmd)

	root.AddCommand(runCmd, waitCmd, pullCmd, buildMockBackendCmd(&logLevel))

	// Signals before hand-off terminate the sequence; after hand-off the
	// foreground service owns signal handling entirely.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	_ = stop // released on process exit
	root.SetContext(ctx)
	return root
}

// addStartupFlags registers the per-command overrides shared by run, wait
// and pull.
func addStartupFlags(cmd *cobra.Command) {
	cmd.Flags().String("ollama-host", "", "Backend base URL (defaults OLLAMA_HOST)")
	cmd.Flags().String("model", "", "Backend model to provision (defaults OLLAMA_BACKEND_MODEL)")
	cmd.Flags().Duration("probe-interval", 0, "Delay between readiness probes")
	cmd.Flags().Int("probe-attempts", 0, "Readiness probe budget")
	cmd.Flags().Duration("probe-timeout", 0, "Per-probe HTTP timeout")
	cmd.Flags().Duration("pull-timeout", 0, "Model pull timeout")
	cmd.Flags().String("backend-cmd", "", "Backend launch command, e.g. 'ollama serve'")
	cmd.Flags().String("server-cmd", "", "Foreground server command, e.g. 'uvicorn main:app'")
	cmd.Flags().String("host", "", "Foreground bind host")
	cmd.Flags().Int("port", 0, "Foreground bind port")
	cmd.Flags().Int("keepalive", 0, "Foreground keep-alive timeout in seconds")
}

// applyFlags overlays explicitly-set flags onto the resolved config. Flags
// win over environment and file values.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("ollama-host") {
		cfg.OllamaHost, _ = f.GetString("ollama-host")
	}
	if f.Changed("model") {
		cfg.BackendModel, _ = f.GetString("model")
	}
	if f.Changed("probe-interval") {
		cfg.ProbeInterval, _ = f.GetDuration("probe-interval")
	}
	if f.Changed("probe-attempts") {
		cfg.ProbeAttempts, _ = f.GetInt("probe-attempts")
	}
	if f.Changed("probe-timeout") {
		cfg.ProbeTimeout, _ = f.GetDuration("probe-timeout")
	}
	if f.Changed("pull-timeout") {
		cfg.PullTimeout, _ = f.GetDuration("pull-timeout")
	}
	if f.Changed("backend-cmd") {
		v, _ := f.GetString("backend-cmd")
		cfg.BackendCmd = strings.Fields(v)
	}
	if f.Changed("server-cmd") {
		v, _ := f.GetString("server-cmd")
		cfg.ServerCmd = strings.Fields(v)
	}
	if f.Changed("host") {
		cfg.BindHost, _ = f.GetString("host")
	}
	if f.Changed("port") {
		cfg.BindPort, _ = f.GetInt("port")
	}
	if f.Changed("keepalive") {
		cfg.KeepAliveS, _ = f.GetInt("keepalive")
	}
}

// buildMockBackendCmd serves the in-process Ollama mock for local dev and CI.
func buildMockBackendCmd(logLevel *string) *cobra.Command {
	var (
		addr      string
		models    string
		warmup    time.Duration
		failPulls bool
	)
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Serve a local Ollama-compatible mock (dev/CI only)",
		Example: "  projexainit mock-backend --addr :11434\n" +
			"  projexainit mock-backend --models llama3.2:3b --warmup 5s",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.Console(*logLevel)
			mock := mockollama.New(mockollama.Options{
				Models:    splitCSV(models),
				Warmup:    warmup,
				FailPulls: failPulls,
			})
			srv := &http.Server{Addr: addr, Handler: mock.Handler()}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Dur("warmup", warmup).Msg("mock backend listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()
			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("graceful shutdown failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":11434", "Listen address")
	cmd.Flags().StringVar(&models, "models", "", "Comma-separated models present at start")
	cmd.Flags().DurationVar(&warmup, "warmup", 0, "Answer 503 on /api/tags for this long")
	cmd.Flags().BoolVar(&failPulls, "fail-pulls", false, "Make every pull fail (failure-path testing)")
	return cmd
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
