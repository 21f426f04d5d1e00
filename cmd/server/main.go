package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/api/handlers"
	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/config"
	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/repository"
	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/service"
	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting ICB tracking server", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库，失败则透明降级到内存存储：REST 和推送通道都要保持可用
	var (
		trackerStore repository.TrackerStore
		busStore     repository.BusStore
		databaseMode string
		db           *repository.DB
	)
	db, err = repository.New(ctx, cfg.DatabaseURL)
	if err == nil {
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		trackerStore = repository.NewTrackerRepository(db)
		busStore = repository.NewBusRepository(db)
		databaseMode = "postgres"
		defer db.Close()
		logger.Info("Database connected and migrated")
	} else {
		trackerStore = repository.NewMemoryTrackerStore()
		busStore = repository.NewMemoryBusStore()
		databaseMode = "memory"
		logger.Warn("Database unreachable, using in-memory store", zap.Error(err))
	}

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run()

	// 创建快照缓存与上报服务
	cache := service.NewSnapshotCache()
	ingest := service.NewIngest(logger, trackerStore, cache, wsHub)

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		busStore,
		trackerStore,
		ingest,
		cache,
		wsHub,
		databaseMode,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("addr", server.Addr),
		zap.String("database", databaseMode))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 优雅关闭：未送达的广播尽力放弃
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
