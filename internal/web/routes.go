// Package web provides the HTTP server and web UI for vecstash.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abdul-hamid-achik/vecstash/internal/items"
	"github.com/abdul-hamid-achik/vecstash/internal/observe"
	"github.com/abdul-hamid-achik/vecstash/internal/search"
)

const shutdownTimeout = 10 * time.Second

// ServerConfig holds configuration for the web server.
type ServerConfig struct {
	Host     string
	Port     int
	Service  *items.Service
	Searcher *search.Searcher
	Logger   *log.Logger
}

// Server is the HTTP server for the web UI and JSON API.
type Server struct {
	config  ServerConfig
	router  *chi.Mux
	handler *Handler
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = observe.Discard()
	}

	s := &Server{
		config:  cfg,
		router:  chi.NewRouter(),
		handler: NewHandler(cfg.Service, cfg.Searcher, cfg.Logger),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  s.config.Logger.StandardLog(log.StandardLogOptions{ForceLevel: log.DebugLevel}),
		NoColor: true,
	}))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handler.Index)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handler.APISearch)
		r.Post("/items", s.handler.APIAddItem)
		r.Delete("/items/{id}", s.handler.APIDeleteItem)
		r.Get("/status", s.handler.APIStatus)
		r.Get("/health", s.handler.Health)
	})
}

// Router returns the chi router for external use.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info("Starting web server", "url", "http://"+srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.config.Logger.Info("Stopping web server")
		return srv.Shutdown(shutdownCtx)
	}
}
