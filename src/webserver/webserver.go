// Package webserver serves the public read API and the operator API.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stake-plus/bottlebot/src/bottles"
	"github.com/stake-plus/bottlebot/src/registry"
)

// Config is the HTTP part of the application configuration.
type Config struct {
	Addr        string
	JWTSecret   string
	CORSOrigins []string
	RPS         float64
	Burst       int
}

// Operator performs the bottle actions exposed to admins.
type Operator interface {
	Redeliver(ctx context.Context, id uint64) error
	Expire(ctx context.Context, id uint64) (bool, error)
}

// Sweeper runs an expiry pass on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (int64, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Store    *bottles.Store
	Guilds   *registry.Guilds
	Users    *registry.Users
	Operator Operator
	Sweeper  Sweeper
}

// Server is the core.Module wrapping the gin engine.
type Server struct {
	cfg    Config
	engine *gin.Engine
	srv    *http.Server
	log    *zap.Logger
}

// New builds the engine and attaches every route.
func New(cfg Config, deps Deps) *Server {
	g := gin.New()
	g.Use(gin.Recovery())
	attachRoutes(g, cfg, deps)
	return &Server{cfg: cfg, engine: g, log: zap.L().Named("webserver")}
}

// Handler exposes the engine, mostly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Name() string { return "webserver" }

func (s *Server) Start(context.Context) error {
	if s.srv != nil {
		return fmt.Errorf("webserver already started")
	}
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.srv
	go func() {
		s.log.Info("webserver: listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("webserver: serve failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	if s.srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("webserver: shutdown", zap.Error(err))
	}
	s.srv = nil
}
