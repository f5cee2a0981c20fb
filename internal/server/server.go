package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"livecat/internal/catalog"
	"livecat/internal/logging"
	"livecat/internal/metrics"
	"livecat/internal/query"
	"livecat/internal/stage"
)

// Server serves the read-only catalog API.
type Server struct {
	svc        *query.Service
	catalogDir string
	router     *mux.Router
}

// New builds the router over a query service. catalogDir is where scan
// checkpoints live, for the progress endpoint.
func New(svc *query.Service, catalogDir string) *Server {
	s := &Server{svc: svc, catalogDir: catalogDir, router: mux.NewRouter()}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.instrument)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/health-scores", s.handleHealthScores).Methods(http.MethodGet)
	api.HandleFunc("/footprint", s.handleFootprint).Methods(http.MethodGet)
	api.HandleFunc("/duplicates", s.handleDuplicates).Methods(http.MethodGet)
	api.HandleFunc("/hotspots", s.handleHotspots).Methods(http.MethodGet)
	api.HandleFunc("/devices", s.handleDevices).Methods(http.MethodGet)
	api.HandleFunc("/pairs", s.handlePairs).Methods(http.MethodGet)
	api.HandleFunc("/chains", s.handleChains).Methods(http.MethodGet)
	api.HandleFunc("/largest", s.handleLargest).Methods(http.MethodGet)
	api.HandleFunc("/activity", s.handleActivity).Methods(http.MethodGet)
	api.HandleFunc("/growth", s.handleGrowth).Methods(http.MethodGet)
	api.HandleFunc("/progress", s.handleProgress).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return s
}

// Router returns the http handler, mostly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe blocks serving the API.
func (s *Server) ListenAndServe(addr string) error {
	logging.Info("Serving catalog API on %s", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv.ListenAndServe()
}

// statusRecorder captures the status code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		duration := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
		logging.Debug("%s %s -> %d in %v", r.Method, r.URL.Path, rec.status, duration.Round(time.Microsecond))
	})
}

func scopeParam(r *http.Request) (catalog.Scope, error) {
	raw := r.URL.Query().Get("scope")
	if raw == "" {
		return catalog.ScopeRecordings, nil
	}
	return catalog.ParseScope(raw)
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 25
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Encoding response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// scoped wraps the scope-parsing and error-shaping common to every
// endpoint.
func (s *Server) scoped(w http.ResponseWriter, r *http.Request, fn func(catalog.Scope) (any, error)) {
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := fn(scope)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.scoped(w, r, func(scope catalog.Scope) (any, error) {
		return s.svc.Stats(scope)
	})
}

func (s *Server) handleHealthScores(w http.ResponseWriter, r *http.Request) {
	s.scoped(w, r, func(scope catalog.Scope) (any, error) {
		return s.svc.WorstHealth(scope, limitParam(r))
	})
}

func (s *Server) handleFootprint(w http.ResponseWriter, r *http.Request) {
	s.scoped(w, r, func(scope catalog.Scope) (any, error) {
		return s.svc.Footprint(scope)
	})
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	s.scoped(w, r, func(scope catalog.Scope) (any, error) {
		return s.svc.Duplicates(scope, limitParam(r))
	})
}

func (s *Server) handleHotspots(w http.ResponseWriter, r *http.Request) {
	s.scoped(w, r, func(scope catalog.Scope) (any, error) {
		return s.svc.Hotspots(scope, limitParam(r))
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	s.scoped(w, r, func(scope catalog.Scope) (any, error) {
		return s.svc.TopDevices(scope, limitParam(r))
	})
}

func (s *Server) handlePairs(w http.ResponseWriter, r *http.Request) {
	s.scoped(w, r, func(scope catalog.Scope) (any, error) {
		return s.svc.TopPairs(scope, limitParam(r))
	})
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	s.scoped(w, r, func(scope catalog.Scope) (any, error) {
		return s.svc.TopChains(scope, limitParam(r))
	})
}

func (s *Server) handleLargest(w http.ResponseWriter, r *http.Request) {
	s.scoped(w, r, func(scope catalog.Scope) (any, error) {
		return s.svc.LargestSets(scope, limitParam(r))
	})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	s.scoped(w, r, func(scope catalog.Scope) (any, error) {
		return s.svc.Activity(scope)
	})
}

func (s *Server) handleGrowth(w http.ResponseWriter, r *http.Request) {
	s.scoped(w, r, func(scope catalog.Scope) (any, error) {
		return s.svc.Growth(scope)
	})
}

// handleProgress reports the scan checkpoints for every scope; scopes
// never scanned are omitted.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	out := make(map[catalog.Scope]*catalog.Checkpoint)
	for _, scope := range catalog.Scopes {
		cp, err := stage.LoadCheckpoint(s.catalogDir, scope)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if cp != nil {
			out[scope] = cp
		}
	}
	writeJSON(w, out)
}
