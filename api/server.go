package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/OldStager01/service-autoscaler/docs"

	"github.com/OldStager01/service-autoscaler/api/handlers"
	"github.com/OldStager01/service-autoscaler/api/middleware"
	"github.com/OldStager01/service-autoscaler/api/websocket"
	"github.com/OldStager01/service-autoscaler/internal/auth"
	"github.com/OldStager01/service-autoscaler/internal/collector"
	"github.com/OldStager01/service-autoscaler/internal/events"
	"github.com/OldStager01/service-autoscaler/internal/governor"
	"github.com/OldStager01/service-autoscaler/internal/runtime"
	"github.com/OldStager01/service-autoscaler/internal/store"
	"github.com/OldStager01/service-autoscaler/internal/telemetry"
	"github.com/OldStager01/service-autoscaler/pkg/config"
)

// Deps bundles everything the HTTP surface exposes. The loop is the
// orchestrator behind the handlers.Loop interface; Events feeds the
// websocket bridge and Publisher lets override mutations show up in
// the event stream alongside loop-originated events.
type Deps struct {
	Loop      handlers.Loop
	Events    *events.EventBus
	Publisher *events.Publisher
	Store     store.Store
	Governor  *governor.Governor
	Runtime   runtime.Runtime
	Querier   collector.Querier
	Telemetry *telemetry.Telemetry
}

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	cfg         *config.Config
	deps        Deps
	authService *auth.Service
	wsHub       *websocket.Hub
	wsBridge    *websocket.EventBridge
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg.API.JWTSecret == "" || cfg.API.JWTSecret == "change-me-in-production" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	authService := auth.NewService(cfg.API)
	wsHub := websocket.NewHub(cfg.WebSocket)

	s := &Server{
		router:      router,
		cfg:         cfg,
		deps:        deps,
		authService: authService,
		wsHub:       wsHub,
	}

	s.setupMiddleware()
	s.setupRoutes()

	// Start WebSocket hub
	go wsHub.Run()

	// Start event bridge to forward loop events to WebSocket clients
	if deps.Events != nil {
		s.wsBridge = websocket.NewEventBridge(wsHub, deps.Events.SubscribeAll())
		s.wsBridge.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.CORS(s.cfg.API.CORS))
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestSizeLimit(1 << 20))

	rateLimiter := middleware.NewRateLimiter(s.cfg.API.RateLimit, time.Minute)
	s.router.Use(middleware.RateLimit(rateLimiter))

	// Manual ticks walk every service; keep them rarer than reads.
	endpointLimiter := middleware.NewEndpointRateLimiter()
	endpointLimiter.AddEndpoint("/api/v1/ticks", 10, time.Minute)
	s.router.Use(endpointLimiter.Middleware())
}

func (s *Server) setupRoutes() {
	probeService := ""
	if len(s.cfg.Services) > 0 {
		probeService = s.cfg.Services[0].Name
	}

	// Handlers
	healthHandler := handlers.NewHealthHandler(s.deps.Store, s.deps.Querier, s.deps.Runtime, probeService, s.deps.Loop)
	authHandler := handlers.NewAuthHandler(s.authService)
	serviceHandler := handlers.NewServiceHandler(s.cfg, s.deps.Store, s.deps.Runtime, s.deps.Loop)
	overrideHandler := handlers.NewOverrideHandler(s.cfg, s.deps.Governor, s.deps.Store, s.deps.Publisher)
	tickHandler := handlers.NewTickHandler(s.deps.Loop)

	v1 := s.router.Group("/api/v1")

	// Public routes
	v1.GET("/health", healthHandler.Health)
	v1.GET("/health/ready", healthHandler.Ready)
	v1.GET("/health/live", healthHandler.Live)

	// Auth routes
	v1.POST("/auth/login", middleware.AuthRateLimiter(), authHandler.Login)

	// WebSocket route
	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))

	// Prometheus scrape endpoint
	if s.deps.Telemetry != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Telemetry.Handler()))
	}

	// Swagger UI
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.JWTAuth(s.authService))
	{
		// Services
		protected.GET("/services", serviceHandler.List)
		protected.GET("/services/:name/log", serviceHandler.Log)

		// Overrides
		protected.PUT("/services/:name/override", overrideHandler.Set)
		protected.DELETE("/services/:name/override", overrideHandler.Clear)
		protected.GET("/overrides", overrideHandler.List)

		// Ticks
		protected.POST("/ticks", tickHandler.Run)
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.API.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.API.ReadTimeout,
		WriteTimeout: s.cfg.API.WriteTimeout,
		IdleTimeout:  s.cfg.API.IdleTimeout,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop the event bridge first
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}
