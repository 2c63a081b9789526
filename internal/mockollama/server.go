package mockollama

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"projexainit/internal/ollama"
)

// Server is an in-process stand-in for the Ollama daemon, covering the three
// endpoints the entrypoint touches. It exists for the e2e tests and the
// mock-backend subcommand; it is not a serving surface.
type Server struct {
	mu      sync.Mutex
	models  map[string]ollama.Model
	pulls   map[string]int
	started time.Time

	warmup     time.Duration
	failPulls  bool
	pullChunks int
	origins    []string
	version    string
}

// Options configures a mock server.
type Options struct {
	// Models present before any pull.
	Models []string
	// Warmup keeps /api/tags answering 503 for this long after New, to
	// simulate a daemon that is slow to come up.
	Warmup time.Duration
	// FailPulls makes every /api/pull return an error line.
	FailPulls bool
	// PullChunks is the number of synthetic download progress lines per
	// pull of a new model.
	PullChunks int
	// AllowedOrigins feeds the CORS middleware; defaults to "*".
	AllowedOrigins []string
}

// New builds a mock daemon.
func New(opts Options) *Server {
	s := &Server{
		models:     make(map[string]ollama.Model),
		pulls:      make(map[string]int),
		started:    time.Now(),
		warmup:     opts.Warmup,
		failPulls:  opts.FailPulls,
		pullChunks: opts.PullChunks,
		origins:    opts.AllowedOrigins,
		version:    "0.0.0-mock",
	}
	if s.pullChunks <= 0 {
		s.pullChunks = 3
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	for _, m := range opts.Models {
		s.models[m] = ollama.Model{Name: m, ModifiedAt: time.Now(), Digest: "sha256:mock"}
	}
	return s
}

// Handler builds the router. Middlewares mirror the real daemon's surface:
// request ids for log correlation, CORS for browser clients, metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))
	r.Use(metricsMiddleware)

	r.Get("/api/tags", s.handleTags)
	r.Post("/api/pull", s.handlePull)
	r.Get("/api/version", s.handleVersion)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", metricsHandler().ServeHTTP)
	return r
}

// ready reports whether the simulated warm-up window has elapsed.
func (s *Server) ready() bool {
	return time.Since(s.started) >= s.warmup
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeJSONError(w, http.StatusServiceUnavailable, "loading")
		return
	}
	s.mu.Lock()
	models := make([]ollama.Model, 0, len(s.models))
	for _, m := range s.models {
		models = append(models, m)
	}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
		Name  string `json:"name"` // older clients
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	name := req.Model
	if name == "" {
		name = req.Name
	}
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	flush := func() {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	s.mu.Lock()
	_, present := s.models[name]
	s.pulls[name]++
	s.mu.Unlock()

	if s.failPulls {
		pullsTotal.WithLabelValues("error").Inc()
		_ = enc.Encode(ollama.PullProgress{Err: "simulated pull failure"})
		flush()
		return
	}

	if present {
		// Idempotent path: a model already on disk streams straight to
		// success with no download work.
		pullsTotal.WithLabelValues("noop").Inc()
		_ = enc.Encode(ollama.PullProgress{Status: "success"})
		flush()
		return
	}

	pullsTotal.WithLabelValues("download").Inc()
	_ = enc.Encode(ollama.PullProgress{Status: "pulling manifest"})
	flush()
	const total = int64(1 << 20)
	for i := 1; i <= s.pullChunks; i++ {
		_ = enc.Encode(ollama.PullProgress{
			Status:    "downloading",
			Digest:    "sha256:mock",
			Total:     total,
			Completed: total * int64(i) / int64(s.pullChunks),
		})
		flush()
	}
	_ = enc.Encode(ollama.PullProgress{Status: "verifying sha256 digest"})
	_ = enc.Encode(ollama.PullProgress{Status: "success"})
	flush()

	s.mu.Lock()
	s.models[name] = ollama.Model{Name: name, ModifiedAt: time.Now(), Size: total, Digest: "sha256:mock"}
	s.mu.Unlock()
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": s.version})
}

// HasModel reports whether the named model is installed.
func (s *Server) HasModel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.models[name]
	return ok
}

// Models lists installed model names.
func (s *Server) Models() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.models))
	for name := range s.models {
		out = append(out, name)
	}
	return out
}

// PullCount reports how many pulls were requested for a model.
func (s *Server) PullCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulls[name]
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": msg,
		"code":  status,
	})
}
