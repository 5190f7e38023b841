package server

import (
	"context"
	"net/http"
	"time"

	"github.com/consultapj/consultapj/internal/catalog"
	catalogdomain "github.com/consultapj/consultapj/internal/catalog/domain"
	"github.com/consultapj/consultapj/internal/config"
	"github.com/consultapj/consultapj/internal/consultation"
	consultationdomain "github.com/consultapj/consultapj/internal/consultation/domain"
	"github.com/consultapj/consultapj/internal/credit"
	creditdomain "github.com/consultapj/consultapj/internal/credit/domain"
	"github.com/consultapj/consultapj/internal/distlock"
	"github.com/consultapj/consultapj/internal/observability"
	obsmiddleware "github.com/consultapj/consultapj/internal/observability/logger"
	"github.com/consultapj/consultapj/internal/plan"
	"github.com/consultapj/consultapj/internal/provider"
	"github.com/consultapj/consultapj/internal/providers/payment"
	"github.com/consultapj/consultapj/internal/ratelimit"
	"github.com/consultapj/consultapj/internal/renewal"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	catalog.Module,
	provider.Module,
	plan.Module,
	payment.Module,
	distlock.Module,
	ratelimit.Module,
	renewal.Module,
	credit.Module,
	consultation.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
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
	engine        *gin.Engine
	cfg           config.Config
	consultations consultationdomain.Service
	credits       creditdomain.Service
	catalog       catalogdomain.Service
	limiter       *ratelimit.ConsultationLimiter
}

type ServerParams struct {
	fx.In

	Engine        *gin.Engine
	Cfg           config.Config
	Consultations consultationdomain.Service
	Credits       creditdomain.Service
	Catalog       catalogdomain.Service
	Limiter       *ratelimit.ConsultationLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:        p.Engine,
		cfg:           p.Cfg,
		consultations: p.Consultations,
		credits:       p.Credits,
		catalog:       p.Catalog,
		limiter:       p.Limiter,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")
	v1.GET("/catalog/types", s.listCatalogTypes)

	authed := v1.Group("")
	authed.Use(UserAuthMiddleware())
	authed.POST("/consultations", s.consultationRateLimit(), s.createConsultation)
	authed.GET("/consultations", s.listConsultations)
	authed.GET("/credits/balance", s.getBalance)
	authed.GET("/credits/transactions", s.listTransactions)
	authed.POST("/credits/topup", s.topUp)
	authed.GET("/credits/verify", s.verifyLedger)
}
