package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "peacepad-signaling/internal/handler/http"
	wsHandler "peacepad-signaling/internal/handler/websocket"
	"peacepad-signaling/internal/hub"
	gormpersistence "peacepad-signaling/internal/infra/persistence/gorm"
	"peacepad-signaling/internal/infra/setup"
	redisstate "peacepad-signaling/internal/infra/state/redis"
	"peacepad-signaling/internal/middleware"
	"peacepad-signaling/internal/service"
	"peacepad-signaling/internal/tasks"
	"peacepad-signaling/internal/worker"
)

// App holds every long-lived component of the signaling server.
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	HttpServer  *http.Server
}

// handlers groups what the router mounts.
type handlers struct {
	sessions  *httpHandler.SessionHandler
	calls     *httpHandler.CallHandler
	presence  *httpHandler.PresenceHandler
	websocket *wsHandler.WebSocketHandler
}

// NewApp loads configuration and wires every component.
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	log := NewLogger(cfg)
	log.Info("Configuration loaded successfully")

	// infrastructure
	db, err := setup.InitDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Redis and asynq client initialized")

	// repositories
	callRepo := gormpersistence.NewGormCallRepository(db)
	sessionRepo := gormpersistence.NewGormSessionRepository(db)
	presenceRepo := redisstate.NewRedisPresenceRepository(redisClient, cfg.KeyPrefix)

	// realtime
	hubInstance := hub.NewHub(hub.NewRegistry(), sessionRepo, presenceRepo)

	// services
	dispatcher := tasks.NewDispatcher(asynqClient)
	callOpts := []service.CallServiceOption{service.WithWakeNotifier(dispatcher)}
	if cfg.RingTimeout > 0 {
		callOpts = append(callOpts, service.WithRingTimeout(dispatcher, cfg.RingTimeout))
		log.Infof("Ring timeout enabled: %s", cfg.RingTimeout)
	}
	callService := service.NewCallService(callRepo, hubInstance, callOpts...)
	sessionService := service.NewSessionService(sessionRepo, hubInstance)
	log.Info("Services initialized")

	workerServer := worker.NewWorkerServer(redisClientOpt, callService, nil, log)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := newRouter(cfg, log, redisClient, handlers{
		sessions:  httpHandler.NewSessionHandler(sessionService),
		calls:     httpHandler.NewCallHandler(callService),
		presence:  httpHandler.NewPresenceHandler(presenceRepo),
		websocket: wsHandler.NewWebSocketHandler(hubInstance, cfg.AllowedOrigins, cfg.WSSendBuffer),
	})
	log.Info("Router setup complete")

	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Hub:         hubInstance,
		HttpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// NewLogger builds the process logger: JSON in production, colored text otherwise.
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)

	// package-level logrus calls follow the same settings
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)
	return log
}

func newRouter(cfg *Config, log *logrus.Logger, redisClient *redis.Client, h handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	router.Use(middleware.RateLimit(redisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))

	auth := middleware.Auth(cfg.JWTSecret)

	api := router.Group("/api", auth)
	{
		api.POST("/sessions", h.sessions.CreateSession)
		api.GET("/sessions/:code", h.sessions.GetSession)
		api.POST("/sessions/:code/end", h.sessions.EndSession)

		api.POST("/calls", h.calls.InitiateCall)
		api.GET("/calls", h.calls.ListCalls)
		api.POST("/calls/:id/accept", h.calls.AcceptCall)
		api.POST("/calls/:id/decline", h.calls.DeclineCall)
		api.POST("/calls/:id/end", h.calls.EndCall)

		api.GET("/presence", h.presence.ListOnline)
	}
	router.GET("/ws", auth, h.websocket.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// Start launches the hub, the worker and the HTTP server in the background.
func (a *App) Start() {
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown stops accepting requests, drains the worker and releases connections.
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware logs each request at a level chosen by its status class.
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if q := c.Request.URL.Query(); len(q) > 0 {
			if q.Has("token") {
				q.Set("token", "redacted")
			}
			path = path + "?" + q.Encode()
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
