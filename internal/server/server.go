package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwise/inkwise/internal/auth/token"
	billingdomain "github.com/inkwise/inkwise/internal/billing/domain"
	"github.com/inkwise/inkwise/internal/config"
	generationdomain "github.com/inkwise/inkwise/internal/generation/domain"
	"github.com/inkwise/inkwise/internal/observability"
	obslogger "github.com/inkwise/inkwise/internal/observability/logger"
	obsmetrics "github.com/inkwise/inkwise/internal/observability/metrics"
	transcriptdomain "github.com/inkwise/inkwise/internal/transcript/domain"
	userdomain "github.com/inkwise/inkwise/internal/user/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(provideTokenManager),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func provideTokenManager(cfg config.Config) *token.Manager {
	return token.NewManager(cfg.AuthJWTSecret, cfg.AuthTokenTTL)
}

func NewEngine(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log, obslogger.MiddlewareConfig{Debug: obsCfg.Debug()}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, obsCfg, httpMetrics)
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
	log           *zap.Logger
	tokens        *token.Manager
	userSvc       userdomain.Service
	transcriptSvc transcriptdomain.Service
	generationSvc generationdomain.Service
	billingSvc    billingdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Tokens        *token.Manager
	UserSvc       userdomain.Service
	TranscriptSvc transcriptdomain.Service
	GenerationSvc generationdomain.Service
	BillingSvc    billingdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("server"),
		tokens:        p.Tokens,
		userSvc:       p.UserSvc,
		transcriptSvc: p.TranscriptSvc,
		generationSvc: p.GenerationSvc,
		billingSvc:    p.BillingSvc,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	api.GET("/profile", s.GetProfile)
	api.PUT("/profile", s.UpdateProfile)
	api.GET("/dashboard", s.Dashboard)

	// Tokens are stateless; logout is an acknowledgment the client can call
	// without credentials, matching how the web client discards its token.
	s.engine.POST("/api/logout", s.Logout)

	// -------- Posts --------
	api.GET("/posts", s.ListPosts)
	api.GET("/posts/:id", s.GetPost)
	api.DELETE("/posts/:id", s.DeletePost)

	// -------- Generation --------
	api.POST("/generate", s.Generate)
	api.POST("/generate_fast", s.GenerateFast)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/api/webhooks/payment", s.PaymentWebhook)
}
