// Package server wires the routing core to its HTTP surface.
//
// DESIGN: Request flow for /chat:
//   - semantic cache consulted first; a hit returns immediately
//   - on miss the query is scored, the selection policy runs, and only then
//     is a model invoked; a flagged suggestion short-circuits generation
//     so no tokens are spent on an answer the user will discard
//
// All dependencies are injected explicitly; the server owns no globals.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/greenroute/gateway/internal/catalog"
	"github.com/greenroute/gateway/internal/config"
	"github.com/greenroute/gateway/internal/ledger"
	"github.com/greenroute/gateway/internal/monitoring"
	"github.com/greenroute/gateway/internal/policy"
	"github.com/greenroute/gateway/internal/providers"
	"github.com/greenroute/gateway/internal/scoring"
	"github.com/greenroute/gateway/internal/semcache"
)

// Server handles the gateway's HTTP API.
type Server struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	policy   *policy.Policy
	scorer   *scoring.Scorer
	registry *providers.Registry
	ledger   *ledger.Ledger
	metrics  *monitoring.Metrics

	// Semantic cache is optional: nil when index construction failed at
	// startup, in which case every lookup is a miss.
	cache     *semcache.PromptCache
	retriever *semcache.Retriever
}

// Deps bundles the server's collaborators.
type Deps struct {
	Config    *config.Config
	Catalog   *catalog.Catalog
	Policy    *policy.Policy
	Scorer    *scoring.Scorer
	Registry  *providers.Registry
	Ledger    *ledger.Ledger
	Metrics   *monitoring.Metrics
	Cache     *semcache.PromptCache
	Retriever *semcache.Retriever
}

// New creates the server.
func New(d Deps) *Server {
	return &Server{
		cfg:       d.Config,
		catalog:   d.Catalog,
		policy:    d.Policy,
		scorer:    d.Scorer,
		registry:  d.Registry,
		ledger:    d.Ledger,
		metrics:   d.Metrics,
		cache:     d.Cache,
		retriever: d.Retriever,
	}
}

// Routes returns the fully wired handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /models", s.handleListModels)
	mux.HandleFunc("POST /complexity", s.handleComplexity)
	mux.HandleFunc("POST /suggest-model", s.handleSuggestModel)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /cache/lookup", s.handleCacheLookup)
	mux.HandleFunc("GET /cache/stats", s.handleCacheStats)
	mux.HandleFunc("POST /savings/accept", s.handleSavingsAccept)
	mux.HandleFunc("GET /savings/total", s.handleSavingsTotal)
	mux.HandleFunc("GET /savings/by-period", s.handleSavingsByPeriod)
	mux.HandleFunc("GET /savings/switch-stats", s.handleSwitchStats)
	mux.HandleFunc("GET /ws/stats", s.handleStatsSocket)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return s.withCORS(s.withLogging(mux))
}

// withLogging assigns a request ID, logs the request, and records metrics.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
		next.ServeHTTP(rec, r)

		if s.metrics != nil {
			s.metrics.ObserveRequest(r.URL.Path, statusClass(rec.status))
		}
		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// withCORS allows the configured frontend origins.
func (s *Server) withCORS(next http.Handler) http.Handler {
	origins := s.cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && (allowed[origin] || allowed["*"]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, msg string, status int) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
