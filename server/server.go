// Package server exposes the workflow engine over HTTP: execute a document,
// validate it, sample a schema, and read the run history. The surface is
// deliberately thin; all semantics live in the engine packages.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/meshflow/meshflow/engine/events"
	"github.com/meshflow/meshflow/engine/executor"
	"github.com/meshflow/meshflow/engine/expr"
	"github.com/meshflow/meshflow/engine/gateway"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/meshflow/meshflow/engine/task/builtin"
	"github.com/meshflow/meshflow/pkg/config"
	"github.com/meshflow/meshflow/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

type Server struct {
	cfg      *config.Config
	emitter  events.Emitter
	gateway  gateway.Gateway
	registry *task.Registry
	executor *executor.Executor
	router   *gin.Engine
	redis    *redis.Client
	ctx      context.Context
	cancel   context.CancelFunc
}

// Option overrides a dependency the server would otherwise build from its
// configuration. Tests use these to observe events or stub the gateway.
type Option func(*Server)

func WithEmitter(emitter events.Emitter) Option {
	return func(s *Server) { s.emitter = emitter }
}

func WithGateway(gw gateway.Gateway) Option {
	return func(s *Server) { s.gateway = gw }
}

// NewServer assembles the engine behind the HTTP surface: emitter, gateway,
// task registry and executor, all driven by the configuration.
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{cfg: cfg, ctx: ctx, cancel: cancel}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.setupDependencies(); err != nil {
		cancel()
		return nil, err
	}
	s.buildRouter()
	return s, nil
}

func (s *Server) setupDependencies() error {
	if s.emitter == nil {
		emitter, err := s.buildEmitter()
		if err != nil {
			return err
		}
		s.emitter = emitter
	}
	if s.gateway == nil {
		s.gateway = s.buildGateway()
	}
	eval, err := expr.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to build expression evaluator: %w", err)
	}
	registry, err := builtin.NewRegistry(builtin.Deps{
		Evaluator: eval,
		Gateway:   s.gateway,
	})
	if err != nil {
		return fmt.Errorf("failed to build task registry: %w", err)
	}
	s.registry = registry
	s.executor = executor.New(registry, s.executorOptions()...)
	return nil
}

func (s *Server) buildEmitter() (events.Emitter, error) {
	switch s.cfg.Events.Emitter {
	case "memory":
		return events.NewMemory(), nil
	case "redis":
		opt, err := redis.ParseURL(s.cfg.Events.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		client := redis.NewClient(opt)
		emitter, err := events.NewRedis(client, &events.RedisOptions{
			MaxEntries: s.cfg.Events.RedisMaxEvents,
		})
		if err != nil {
			client.Close()
			return nil, err
		}
		s.redis = client
		return emitter, nil
	default:
		return events.Noop{}, nil
	}
}

func (s *Server) buildGateway() gateway.Gateway {
	gwOpts := []gateway.LocalOption{
		gateway.WithEmitter(s.emitter),
		gateway.WithHTTPClient(resty.New().SetTimeout(s.cfg.Gateway.HTTPTimeout)),
	}
	if dir := s.cfg.Gateway.ArtifactDir; dir != "" {
		gwOpts = append(gwOpts, gateway.WithFS(afero.NewBasePathFs(afero.NewOsFs(), dir)))
	}
	return gateway.NewLocal(gwOpts...)
}

func (s *Server) executorOptions() []executor.Option {
	opts := []executor.Option{
		executor.WithEmitter(s.emitter),
		executor.WithMaxNodes(s.cfg.Runtime.MaxNodes),
		executor.WithHistoryLimit(s.cfg.Runtime.HistoryLimit),
	}
	if s.cfg.Runtime.Mode == "dry-run" {
		opts = append(opts, executor.WithMode(executor.ModeDryRun))
	}
	if s.cfg.Runtime.SampleSeed != 0 {
		opts = append(opts, executor.WithSampleSeed(s.cfg.Runtime.SampleSeed))
	}
	return opts
}

func (s *Server) buildRouter() {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware())
	if s.cfg.Server.CORSEnabled {
		r.Use(CORSMiddleware(&s.cfg.Server.CORS))
	}
	s.registerRoutes(r)
	s.router = r
}

// Handler returns the mounted routes for serving or for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run() error {
	srv := s.createHTTPServer()

	// Start server in goroutine
	go s.startServer(srv)

	// Wait for shutdown signal and handle graceful shutdown
	return s.handleGracefulShutdown(srv)
}

func (s *Server) createHTTPServer() *http.Server {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	logger.Info("Starting HTTP server",
		"address", fmt.Sprintf("http://%s", addr),
	)
	return &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.Timeout,
		WriteTimeout: s.cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) startServer(srv *http.Server) {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed to start",
			"error", err,
		)
		os.Exit(1)
	}
}

func (s *Server) handleGracefulShutdown(srv *http.Server) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Debug("Received shutdown signal, initiating graceful shutdown")

	s.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Error("Failed to close redis client", "error", err)
		}
	}

	logger.Info("Server shutdown completed successfully")
	return nil
}
