package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/tariron/saasodoo-sub008/internal/billing/domain"
	"github.com/tariron/saasodoo-sub008/internal/config"
	instancedomain "github.com/tariron/saasodoo-sub008/internal/instance/domain"
	"github.com/tariron/saasodoo-sub008/internal/observability/logger"
	webhookdomain "github.com/tariron/saasodoo-sub008/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

// Server holds the HTTP surface of the orchestrator.
type Server struct {
	cfg        config.Config
	log        *zap.Logger
	db         *gorm.DB
	engine     *gin.Engine
	instances  instancedomain.Service
	subs       billingdomain.Repository
	webhookSvc webhookdomain.Service
}

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	DB         *gorm.DB
	Engine     *gin.Engine
	Instances  instancedomain.Service
	Subs       billingdomain.Repository
	WebhookSvc webhookdomain.Service
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		db:         p.DB,
		engine:     p.Engine,
		instances:  p.Instances,
		subs:       p.Subs,
		webhookSvc: p.WebhookSvc,
	}
}

// NewEngine builds the gin engine with recovery and request logging.
func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz"},
	}))
	return engine
}

// RegisterRoutes wires the API surface.
func (s *Server) RegisterRoutes() {
	s.engine.GET("/healthz", s.Healthz)

	api := s.engine.Group("/api/v1")
	{
		api.POST("/instances", s.CreateInstance)
		api.GET("/instances", s.ListInstances)
		api.GET("/instances/:id", s.GetInstance)
		api.POST("/instances/:id/retry", s.RetryInstance)
		api.POST("/instances/:id/start", s.StartInstance)
		api.POST("/instances/:id/stop", s.StopInstance)
		api.DELETE("/instances/:id", s.TerminateInstance)
	}

	s.engine.POST("/webhooks/billing", s.IngestBillingWebhook)
}

// RunHTTP starts the listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				s.log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
