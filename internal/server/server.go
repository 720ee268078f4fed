// Package server exposes the two HTTP surfaces a running instance binds:
// a public, read-only surface serving feed XML, media, artwork and
// transcripts, and an admin surface for operator-triggered operations and
// metrics scraping. Both are gin engines, the teacher's HTTP framework,
// each on its own *http.Server so the admin surface can be bound to a
// different interface/port than the public one.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"vodcast/internal/coordinator"
	"vodcast/internal/pathutil"
	"vodcast/internal/scheduler"
	"vodcast/internal/store"
)

// Server wraps the two HTTP listeners this process exposes.
type Server struct {
	public *http.Server
	admin  *http.Server
}

// Config bundles the address and collaborator wiring Server needs.
type Config struct {
	Host            string
	PublicPort      int
	AdminPort       int
	TrustedProxies  []string
	Store           store.Store
	Paths           *pathutil.Manager
	Coordinator     *coordinator.Coordinator
	Scheduler       *scheduler.FeedScheduler
	MetricsRegistry *prometheus.Registry
}

// New builds both gin engines and their http.Server wrappers. Nothing is
// listening until Start is called.
func New(cfg Config) (*Server, error) {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	publicRouter := gin.New()
	publicRouter.Use(gin.Logger(), gin.Recovery())
	if err := publicRouter.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("server: set trusted proxies on public router: %w", err)
	}
	setupPublicRoutes(publicRouter, cfg.Paths)

	adminRouter := gin.New()
	adminRouter.Use(gin.Logger(), gin.Recovery(), corsMiddleware())
	if err := adminRouter.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("server: set trusted proxies on admin router: %w", err)
	}
	setupAdminRoutes(adminRouter, cfg.Store, cfg.Coordinator, cfg.Scheduler, cfg.MetricsRegistry)

	return &Server{
		public: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.PublicPort),
			Handler:      publicRouter,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		admin: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.AdminPort),
			Handler:      adminRouter,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

// Start launches both listeners in the background, sending the first
// fatal error (if either ever returns one other than ErrServerClosed) on
// errCh.
func (s *Server) Start(errCh chan<- error) {
	slog.Info("starting public http server", "address", s.public.Addr)
	go func() {
		if err := s.public.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: public listener: %w", err)
		}
	}()

	slog.Info("starting admin http server", "address", s.admin.Addr)
	go func() {
		if err := s.admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: admin listener: %w", err)
		}
	}()
}

// Shutdown gracefully drains both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down http servers")
	if err := s.public.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown public listener: %w", err)
	}
	if err := s.admin.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown admin listener: %w", err)
	}
	return nil
}
