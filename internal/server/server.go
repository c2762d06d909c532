package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/authz"
	"github.com/vyrodovalexey/avauthz/internal/authz/model"
	"github.com/vyrodovalexey/avauthz/internal/config"
	"github.com/vyrodovalexey/avauthz/internal/observability"
	"github.com/vyrodovalexey/avauthz/internal/store"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Server is the policy decision server.
type Server struct {
	cfg      *config.ServerConfig
	logger   observability.Logger
	engine   *gin.Engine
	enforcer authz.Enforcer

	auditLogger audit.Logger
	watcher     *store.Watcher
	closers     []func() error

	httpServer *http.Server
}

// New wires a decision server from its configuration: model, store,
// enforcer, cache, audit trail, and HTTP routes.
func New(cfg *config.ServerConfig, logger observability.Logger) (*Server, error) {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		cfg:    cfg,
		logger: logger,
	}

	m, err := loadModel(cfg)
	if err != nil {
		return nil, err
	}

	policyStore, err := s.buildStore(cfg)
	if err != nil {
		return nil, err
	}

	metrics := authz.NewMetrics(cfg.MetricsNamespace)
	metrics.Init()

	opts := []authz.EnforcerOption{
		authz.WithEnforcerLogger(logger),
		authz.WithEnforcerMetrics(metrics),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, authz.WithDecisionCache(
			authz.NewMemoryDecisionCache(cfg.Cache.TTL.Duration(), cfg.Cache.MaxSize),
		))
	}
	if cfg.Audit.Enabled {
		auditLogger, err := audit.NewLogger(cfg.Audit.Output,
			audit.WithLogger(logger),
			audit.WithMetrics(audit.NewMetrics(cfg.MetricsNamespace)),
		)
		if err != nil {
			return nil, err
		}
		s.auditLogger = auditLogger
		opts = append(opts, authz.WithDecisionRecorder(auditLogger))
	}

	enforcer, err := authz.NewEnforcer(m, policyStore, opts...)
	if err != nil {
		return nil, err
	}
	s.enforcer = enforcer
	s.closers = append(s.closers, enforcer.Close)

	if _, err := enforcer.Reload(context.Background()); err != nil {
		return nil, fmt.Errorf("initial policy load: %w", err)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.registerRoutes()

	return s, nil
}

// loadModel reads the configured model file, or falls back to the
// built-in default model.
func loadModel(cfg *config.ServerConfig) (*model.Model, error) {
	if cfg.Model.Path == "" {
		return model.Default(), nil
	}
	text, err := os.ReadFile(cfg.Model.Path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	return model.Parse(string(text))
}

// buildStore constructs the configured policy store backend.
func (s *Server) buildStore(cfg *config.ServerConfig) (authz.Store, error) {
	switch cfg.Store.Kind {
	case config.StoreKindFile:
		return store.NewFileStore(cfg.Store.File.Path,
			store.WithFileStoreLogger(s.logger),
		), nil

	case config.StoreKindRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		opts := []store.RedisStoreOption{store.WithRedisStoreLogger(s.logger)}
		if cfg.Store.Redis.Key != "" {
			opts = append(opts, store.WithRedisKey(cfg.Store.Redis.Key))
		}
		rs := store.NewRedisStore(client, opts...)
		s.closers = append(s.closers, rs.Close)
		return rs, nil

	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
}

// Engine returns the gin engine, for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Enforcer returns the wired enforcer.
func (s *Server) Enforcer() authz.Enforcer {
	return s.enforcer
}

// registerRoutes wires the HTTP surface.
func (s *Server) registerRoutes() {
	s.engine.POST("/v1/decide", s.handleDecide)
	s.engine.POST("/v1/reload", s.handleReload)
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run starts the HTTP server and blocks until the context is canceled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// The file watcher keeps snapshots in sync with out-of-band edits;
	// the reload endpoint stays available either way.
	if s.cfg.Store.Kind == config.StoreKindFile && s.cfg.Store.File.Watch {
		watcher, err := store.NewWatcher(s.cfg.Store.File.Path, func(ctx context.Context) {
			if _, err := s.enforcer.Reload(ctx); err != nil {
				s.logger.Error("reload after policy file change failed", observability.Error(err))
			}
		}, store.WithWatcherLogger(s.logger))
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		s.watcher = watcher
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("decision server listening",
			observability.String("addr", s.cfg.Listen),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.close()
	return err
}

// close releases everything the server owns.
func (s *Server) close() {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn("stopping policy watcher", observability.Error(err))
		}
	}
	if s.auditLogger != nil {
		if err := s.auditLogger.Close(); err != nil {
			s.logger.Warn("closing audit trail", observability.Error(err))
		}
	}
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Warn("closing resource", observability.Error(err))
		}
	}
}
