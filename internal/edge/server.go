package edge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/strayhaven/edge/config"
	cfgloader "github.com/strayhaven/edge/internal/config"
	"github.com/strayhaven/edge/internal/listener"
)

// Server runs the public listener, the admin listener and the legacy
// health checker for one Edge.
type Server struct {
	edge   *Edge
	config *config.Config
	logger *zap.Logger
	public *listener.HTTPListener
	admin  *listener.HTTPListener
}

// NewServer builds the Edge and its listeners. Startup warnings from the
// configuration are logged once here.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, w := range cfgloader.Warnings(cfg) {
		logger.Warn(w)
	}

	e, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{edge: e, config: cfg, logger: logger}

	lc := cfg.Listener
	s.public, err = listener.NewHTTPListener(listener.HTTPListenerConfig{
		Name:              "public",
		Address:           lc.Address,
		Handler:           e.Handler(),
		TLS:               lc.TLS,
		ReadTimeout:       lc.ReadTimeout,
		WriteTimeout:      lc.WriteTimeout,
		IdleTimeout:       lc.IdleTimeout,
		ReadHeaderTimeout: lc.ReadHeaderTimeout,
		MaxHeaderBytes:    lc.MaxHeaderBytes,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	if cfg.Admin.Enabled {
		s.admin, err = listener.NewHTTPListener(listener.HTTPListenerConfig{
			Name:         "admin",
			Address:      cfg.Admin.Address,
			Handler:      e.AdminHandler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create admin listener: %w", err)
		}
	}

	return s, nil
}

// Edge returns the assembled edge.
func (s *Server) Edge() *Edge {
	return s.edge
}

// PublicAddr returns the public listener address, the bound one after Run
// has started listening.
func (s *Server) PublicAddr() string {
	return s.public.Addr()
}

// AdminAddr returns the admin listener address, empty when disabled.
func (s *Server) AdminAddr() string {
	if s.admin == nil {
		return ""
	}
	return s.admin.Addr()
}

// Listen binds every listener so address errors surface before serving.
func (s *Server) Listen() error {
	if err := s.public.Listen(); err != nil {
		return err
	}
	if s.admin != nil {
		return s.admin.Listen()
	}
	return nil
}

// Run serves until ctx is cancelled or a listener fails, then shuts down
// gracefully within shutdown.timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	s.logger.Info("edge listening",
		zap.String("address", s.public.Addr()),
		zap.Bool("tls", s.public.TLS()),
	)
	g.Go(s.public.Serve)

	if s.admin != nil {
		s.logger.Info("admin listening", zap.String("address", s.admin.Addr()))
		g.Go(s.admin.Serve)
	}

	if hc := s.edge.HealthChecker(); hc != nil {
		g.Go(func() error { return hc.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		return s.Shutdown()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}

// Shutdown stops the listeners and flushes telemetry.
func (s *Server) Shutdown() error {
	timeout := s.config.Shutdown.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if s.admin != nil {
		if err := s.admin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin shutdown: %w", err))
		}
	}
	if err := s.public.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("listener shutdown: %w", err))
	}
	if err := s.edge.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("edge close: %w", err))
	}
	return errors.Join(errs...)
}
