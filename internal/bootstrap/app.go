package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "github.com/MatiRivarola/impostor-backend/internal/handler/http"
	wsHandler "github.com/MatiRivarola/impostor-backend/internal/handler/websocket"
	"github.com/MatiRivarola/impostor-backend/internal/hub"
	gormpersistence "github.com/MatiRivarola/impostor-backend/internal/infra/persistence/gorm"
	"github.com/MatiRivarola/impostor-backend/internal/infra/setup"
	redisstate "github.com/MatiRivarola/impostor-backend/internal/infra/state/redis"
	"github.com/MatiRivarola/impostor-backend/internal/middleware"
	"github.com/MatiRivarola/impostor-backend/internal/repository"
	"github.com/MatiRivarola/impostor-backend/internal/service"
	"github.com/MatiRivarola/impostor-backend/internal/tasks"
	"github.com/MatiRivarola/impostor-backend/internal/worker"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	DBEnabled       bool
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	TokenSecret     string
	ServerPort      string
	LogLevel        string
	RateLimitMax    int
	RateLimitWindow time.Duration
	AppEnv          string
	KeyPrefix       string
	AllowedOrigins  []string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件（如果存在），允许只使用环境变量
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBName:        os.Getenv("DB_NAME"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		TokenSecret:   os.Getenv("TOKEN_SECRET"),
		ServerPort:    os.Getenv("SERVER_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		AppEnv:        os.Getenv("APP_ENV"),
		KeyPrefix:     os.Getenv("REDIS_KEY_PREFIX"),
		// 默认值
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
	}

	redisDBStr := os.Getenv("REDIS_DB")
	cfg.RedisDB, _ = strconv.Atoi(redisDBStr)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "imp:"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("environment variable TOKEN_SECRET must be set")
	}

	// 归档数据库是可选的：未配置时跳过 MySQL，只丢失对局历史
	cfg.DBEnabled = cfg.DBHost != "" && cfg.DBName != ""

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	TaskClient  *tasks.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	Timer       *service.TimerService
	HttpServer  *http.Server

	cancelTimer context.CancelFunc
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	logrus.SetLevel(logLevel)
	log.Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	var db *gorm.DB
	var archiveRepo repository.ArchiveRepository
	if cfg.DBEnabled {
		db, err = setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, fmt.Errorf("failed to init DB: %w", err)
		}
		if err := setup.MigrateDB(db); err != nil {
			return nil, fmt.Errorf("failed to migrate DB: %w", err)
		}
		archiveRepo = gormpersistence.NewGormArchiveRepository(db)
		log.Info("Database initialized and migrated")
	} else {
		log.Warn("Database not configured, game history disabled")
	}

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	taskClient := tasks.NewClient(redisClientOpt)
	log.Info("Task client initialized")

	// 4. 初始化 Repository 和 Services
	log.Info("Initializing services...")
	settings := service.DefaultSettings()
	roomRepo := redisstate.NewRedisRoomRepository(redisClient, cfg.KeyPrefix, settings.RoomTTL)

	seed := time.Now().UnixNano()
	locks := service.NewRoomLocks()
	avatars := service.NewAvatarAllocator(rand.New(rand.NewSource(seed + 1)))

	tokenService, err := service.NewTokenService(cfg.TokenSecret, settings.RoomTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create TokenService: %w", err)
	}
	// 每个服务必须持有独立的随机源：服务内部的锁只保护自己那一个实例
	roomService := service.NewRoomService(roomRepo, avatars, locks, settings, rand.New(rand.NewSource(seed)))
	gameService := service.NewGameService(roomRepo, roomService, locks, taskClient, settings, rand.New(rand.NewSource(seed+2)))
	presenceService := service.NewPresenceService(roomRepo, roomService, locks, tokenService, taskClient, settings)
	log.Info("Services initialized")

	// 5. 初始化 Hub 与计时服务
	hubInstance := hub.NewHub(roomService, gameService, presenceService, tokenService)
	timerService := service.NewTimerService(roomRepo, locks, hubInstance, taskClient)
	log.Info("Hub initialized")

	// 6. 初始化 Handlers
	roomHandler := httpHandler.NewRoomHandler(roomService, archiveRepo)
	websocketHandler := wsHandler.NewWebSocketHandler(hubInstance, cfg.AllowedOrigins)
	log.Info("Handlers initialized")

	// 7. 初始化 Worker Server
	workerServer := worker.NewWorkerServer(redisClientOpt, roomService, archiveRepo, hubInstance, log)
	log.Info("Worker server initialized")

	// 8. 初始化 Gin Engine 和路由
	log.Info("Setting up Gin router...")
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(corsMiddleware(cfg.AllowedOrigins))
	router.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))

	api := router.Group("/api")
	{
		api.GET("/rooms/:code", roomHandler.Lookup)
		api.GET("/themes", roomHandler.Themes)
		api.GET("/games/recent", roomHandler.RecentGames)
	}
	router.GET("/ws", websocketHandler.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	app := &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		TaskClient:  taskClient,
		AsynqServer: workerServer,
		Hub:         hubInstance,
		Timer:       timerService,
		HttpServer:  httpServer,
	}
	log.Info("Application assembled successfully")

	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	timerCtx, cancel := context.WithCancel(context.Background())
	a.cancelTimer = cancel
	go a.Timer.Run(timerCtx)
	a.Log.Info("Debate timer routine started")

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	if a.cancelTimer != nil {
		a.cancelTimer()
	}

	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	if a.TaskClient != nil {
		if err := a.TaskClient.Close(); err != nil {
			a.Log.Errorf("Error closing task client: %v", err)
		}
	}

	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// corsMiddleware 设置跨域响应头；未配置来源时放行所有来源。
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowed := "*"
		if len(allowedOrigins) > 0 {
			allowed = allowedOrigins[0]
			for _, o := range allowedOrigins {
				if o == origin {
					allowed = o
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowed)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage != "" {
			entry.Error(errorMessage)
		} else {
			if statusCode >= 500 {
				entry.Error("Server error")
			} else if statusCode >= 400 {
				entry.Warn("Client error")
			} else {
				entry.Info("Request handled")
			}
		}
	}
}
