package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"timerd/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	engine     *core.Engine
	logger     *slog.Logger
	authToken  string
}

// NewServer constructs the HTTP API server.
func NewServer(addr string, authToken string, engine *core.Engine, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		engine:    engine,
		logger:    logger,
		authToken: authToken,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Post("/schedule/preview", s.handleSchedulePreview)

		r.Route("/timers", func(r chi.Router) {
			r.Get("/", s.handleListTimers)
			r.Post("/", s.handleCreateTimer)
			r.Get("/total", s.handleCountTimers)

			r.Route("/{timerID}", func(r chi.Router) {
				r.Delete("/", s.handleDeleteTimer)
				r.Get("/details", s.handleTimerDetails)
				r.Put("/description", s.handleUpdateTimerDescription)
				r.Put("/state", s.handleUpdateTimerState)
				r.Put("/schedule_definition", s.handleUpdateTimerSchedule)
			})
		})

		r.Route("/bulk-timers", func(r chi.Router) {
			r.Post("/", s.handleBulkCreateTimers)
			r.Delete("/", s.handleBulkDeleteTimers)
			r.Put("/description", s.handleBulkUpdateTimerDescription)
			r.Put("/state", s.handleBulkUpdateTimerState)
			r.Put("/schedule_definition", s.handleBulkUpdateTimerSchedule)
		})

		r.Route("/timer-tasks", func(r chi.Router) {
			r.Get("/", s.handleListTimerTasks)
			r.Post("/", s.handleCreateTimerTask)
			r.Get("/total", s.handleCountTimerTasks)

			r.Route("/{timerID}", func(r chi.Router) {
				r.Delete("/", s.handleDeleteTimerTask)
				r.Get("/details", s.handleTimerTaskDetails)
				r.Put("/description", s.handleUpdateTimerTaskDescription)
				r.Put("/state", s.handleUpdateTimerTaskState)
				r.Put("/timer_definition", s.handleUpdateTimerTaskSchedule)
			})
		})

		r.Route("/bulk-timer-tasks", func(r chi.Router) {
			r.Post("/", s.handleBulkCreateTimerTasks)
			r.Delete("/", s.handleBulkDeleteTimerTasks)
			r.Put("/description", s.handleBulkUpdateTimerTaskDescription)
			r.Put("/state", s.handleBulkUpdateTimerTaskState)
			r.Put("/timer_definition", s.handleBulkUpdateTimerTaskSchedule)
		})
	})
}
