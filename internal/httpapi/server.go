package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/fleetcheck/internal/domain"
	apimw "github.com/hamed0406/fleetcheck/internal/httpapi/middleware"
	"github.com/hamed0406/fleetcheck/internal/metrics"
	"github.com/hamed0406/fleetcheck/internal/registry"
)

const (
	defaultResultLimit = 100
	maxResultLimit     = 1000
	maxDays            = 366
)

type Options struct {
	Keys           apimw.Keys
	AllowedOrigins []string
	PublicRPM      int
	PublicBurst    int
	AdminRPM       int
	AdminBurst     int
	// DefaultDays applies when a metrics request has no ?days.
	DefaultDays int
}

type Server struct {
	Logger   *zap.Logger
	Registry *registry.Registry
	Metrics  *metrics.Engine
	// Events serves the websocket stream; Telemetry serves /metrics. Either may be nil.
	Events    http.Handler
	Telemetry http.Handler
}

func NewServer(l *zap.Logger, reg *registry.Registry, eng *metrics.Engine, events, telemetry http.Handler) *Server {
	return &Server{Logger: l, Registry: reg, Metrics: eng, Events: events, Telemetry: telemetry}
}

func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	r.Use(corsHandler(opts.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Telemetry != nil {
		r.Method(http.MethodGet, "/metrics", s.Telemetry)
	}

	days := opts.DefaultDays
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(opts.PublicRPM, opts.PublicBurst))
			r.Use(apimw.RequireAny(opts.Keys))

			r.Get("/services", s.handleListServices)
			r.Get("/services/{id}/results", s.handleResults)
			r.Get("/metrics", s.handleAllMetrics(days))
			r.Get("/metrics/{id}", s.handleServiceMetrics(days))
			r.Get("/metrics/{id}/summary", s.handleSummary(days))
			if s.Events != nil {
				r.Method(http.MethodGet, "/events", s.Events)
			}
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(opts.AdminRPM, opts.AdminBurst))
			r.Use(apimw.RequireAdmin(opts.Keys))

			r.Post("/services", s.handleCreateService)
			r.Delete("/services/{id}", s.handleDeleteService)
		})
	})
	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

// ---- services ----

type createPayload struct {
	Name     string            `json:"name"`
	Interval int64             `json:"interval"` // seconds
	Kind     domain.KindConfig `json:"kind"`
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var p createPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload: "+err.Error())
		return
	}
	kind, err := p.Kind.Kind()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.Registry.Create(r.Context(), p.Name, kind, time.Duration(p.Interval)*time.Second)
	switch {
	case errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrInvalidKind), errors.Is(err, domain.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.Logger.Error("create_service_error", zap.String("name", p.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create service")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	list, err := s.Registry.List(r.Context())
	if err != nil {
		s.Logger.Error("list_services_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	if list == nil {
		list = []domain.Service{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	err := s.Registry.Delete(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "service not found")
	case err != nil:
		s.Logger.Error("delete_service_error", zap.String("service_id", id.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete service")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r, "limit", defaultResultLimit, maxResultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.Registry.ResultsFor(r.Context(), id, limit)
	if err != nil {
		s.Logger.Error("list_results_error", zap.String("service_id", id.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "results error")
		return
	}
	if res == nil {
		res = []domain.Result{}
	}
	writeJSON(w, http.StatusOK, res)
}

// ---- metrics ----

func (s *Server) handleAllMetrics(defDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := intParam(r, "days", defDays, maxDays)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rows, err := s.Metrics.All(r.Context(), days)
		if err != nil {
			s.Logger.Error("list_metrics_error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "metrics error")
			return
		}
		if rows == nil {
			rows = []domain.ServiceMetric{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func (s *Server) handleServiceMetrics(defDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		days, err := intParam(r, "days", defDays, maxDays)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rows, err := s.Metrics.ForService(r.Context(), id, days)
		if err != nil {
			s.Logger.Error("list_metrics_error", zap.String("service_id", id.String()), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "metrics error")
			return
		}
		if rows == nil {
			rows = []domain.ServiceMetric{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func (s *Server) handleSummary(defDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		days, err := intParam(r, "days", defDays, maxDays)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// the summary writes metric rows, so only for known services
		if _, err := s.Registry.Get(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "service not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "lookup error")
			return
		}
		sum, err := s.Metrics.Summary(r.Context(), id, days)
		if err != nil {
			s.Logger.Error("summary_error", zap.String("service_id", id.String()), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "summary error")
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// ---- helpers ----

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return uuid.Nil, false
	}
	return id, true
}

// intParam reads a non-negative query int, clamped to max.
func intParam(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
