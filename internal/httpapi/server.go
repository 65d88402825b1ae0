package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/vmwatchdog/internal/domain"
	apimw "github.com/hamed0406/vmwatchdog/internal/httpapi/middleware"
	"github.com/hamed0406/vmwatchdog/internal/watchdog"
)

// Operator is the manual-check surface shared with the chat bot.
type Operator interface {
	Status() []domain.MachineStatus
	CheckMachine(ctx context.Context, name string) (domain.StatusLine, error)
	CheckAll(ctx context.Context) []domain.StatusLine
}

type Server struct {
	Logger  *zap.Logger
	Ops     Operator
	Metrics http.Handler
}

func NewServer(l *zap.Logger, ops Operator, metrics http.Handler) *Server {
	return &Server{Logger: l, Ops: ops, Metrics: metrics}
}

// Router mounts health and metrics at the root and the operator API under
// /api, which is rate limited and guarded by adminKeys.
func (s *Server) Router(adminKeys []string, rpm, burst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(rpm, burst))
		r.Use(apimw.RequireAdmin(adminKeys))

		r.Get("/machines", s.handleListMachines)
		r.Post("/machines/{name}/check", s.handleCheckMachine)
		r.Post("/check", s.handleCheckAll)
	})

	return r
}

func (s *Server) handleListMachines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Ops.Status())
}

func (s *Server) handleCheckMachine(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	line, err := s.Ops.CheckMachine(r.Context(), name)
	var unknown *watchdog.ErrUnknownMachine
	switch {
	case errors.As(err, &unknown):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	case err != nil:
		s.Logger.Warn("api_check_error", zap.String("machine", name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "check failed"})
		return
	}
	s.Logger.Info("api_manual_check", zap.String("machine", name), zap.Bool("ok", line.OK))
	writeJSON(w, http.StatusOK, statusReply{StatusLine: line, Line: line.String()})
}

func (s *Server) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	lines := s.Ops.CheckAll(r.Context())
	out := make([]statusReply, len(lines))
	for i, l := range lines {
		out[i] = statusReply{StatusLine: l, Line: l.String()}
	}
	s.Logger.Info("api_manual_check_all", zap.Int("machines", len(out)))
	writeJSON(w, http.StatusOK, out)
}

type statusReply struct {
	domain.StatusLine
	Line string `json:"line"`
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
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
