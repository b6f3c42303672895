// Package server содержит HTTP-сервер состояния пересыльщика.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"telegram-forwarder/internal/core/services"
	"telegram-forwarder/internal/pkg/config"
)

// HealthChecker проверяет доступность Telegram API.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// StatsProvider отдает счетчики обработки сообщений.
type StatsProvider interface {
	Stats() services.Stats
}

// Option — функциональная опция для Server.
type Option func(*Server)

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCacheSize добавляет в статистику размер кэша сущностей.
func WithCacheSize(size func() int) Option {
	return func(s *Server) {
		s.cacheSize = size
	}
}

// Server представляет HTTP-сервер состояния
type Server struct {
	HTTPServer *http.Server
	mode       string
	health     HealthChecker
	stats      StatsProvider
	cacheSize  func() int
	started    time.Time
	log        *slog.Logger
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type statsResponse struct {
	Mode           string         `json:"mode"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	CachedEntities *int           `json:"cached_entities,omitempty"`
	Messages       services.Stats `json:"messages"`
}

// New создает сервер состояния для указанного режима работы.
func New(cfg *config.Config, mode string, health HealthChecker, stats StatsProvider, opts ...Option) *Server {
	s := &Server{
		mode:    mode,
		health:  health,
		stats:   stats,
		started: time.Now(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	chiRouter := chi.NewRouter()
	chiRouter.Use(middleware.RequestID)
	chiRouter.Use(s.requestLogger)
	chiRouter.Use(middleware.Recoverer)

	chiRouter.Get("/health", s.handleHealth)
	chiRouter.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
	})

	s.HTTPServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      chiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.health.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{
		Mode:          s.mode,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Messages:      s.stats.Stats(),
	}
	if s.cacheSize != nil {
		n := s.cacheSize()
		resp.CachedEntities = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Run запускает сервер и останавливает его при отмене контекста.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Status server started", "addr", s.HTTPServer.Addr)
		if err := s.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown корректно завершает работу HTTP-сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down status server")
	return s.HTTPServer.Shutdown(ctx)
}
