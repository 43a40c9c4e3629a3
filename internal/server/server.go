package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gaiaguardians/walking/internal/anomaly"
	"github.com/gaiaguardians/walking/internal/cache"
	"github.com/gaiaguardians/walking/internal/cache/warm"
	"github.com/gaiaguardians/walking/internal/config"
	"github.com/gaiaguardians/walking/internal/energy"
	energydomain "github.com/gaiaguardians/walking/internal/energy/domain"
	"github.com/gaiaguardians/walking/internal/observability"
	obsmiddleware "github.com/gaiaguardians/walking/internal/observability/logger"
	obsmetrics "github.com/gaiaguardians/walking/internal/observability/metrics"
	obstracing "github.com/gaiaguardians/walking/internal/observability/tracing"
	"github.com/gaiaguardians/walking/internal/ratelimit"
	"github.com/gaiaguardians/walking/internal/steps"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	anomaly.Module,
	cache.Module,
	ratelimit.Module,
	steps.Module,
	energy.Module,
	warm.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	stepSvc    stepdomain.Service
	energySvc  energydomain.Service
	limiter    ratelimit.Deps
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	StepSvc    stepdomain.Service
	EnergySvc  energydomain.Service
	Limiter    ratelimit.Deps
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		stepSvc:    p.StepSvc,
		energySvc:  p.EnergySvc,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	guardians := s.engine.Group("/api/v1/guardians/:guardianId")

	guardians.POST("/steps", s.submitRateLimit(), s.submitSteps)
	guardians.GET("/steps/current", s.getCurrentStepCount)
	guardians.GET("/steps/history", s.getStepHistory)
	guardians.GET("/energy/balance", s.getEnergyBalance)
	guardians.POST("/energy/spend", s.spendEnergy)
}
