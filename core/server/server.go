package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"salesflow/core/cache"
	"salesflow/core/config"
	"salesflow/core/constants"
	"salesflow/core/database"
	"salesflow/core/logger"
	"salesflow/core/middleware"
	"salesflow/core/queue"
	"salesflow/modules/availability"
	"salesflow/modules/event"
	"salesflow/modules/integration"
	"salesflow/modules/notification"
	"salesflow/modules/provider"
	syncModule "salesflow/modules/sync"
	"salesflow/modules/webhook"
)

// Run boots the full service: database, redis, queue, provider adapters and
// every HTTP module, then blocks until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.InitDB(database.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	redisCache, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer redisCache.Close()

	q := queue.New(cfg.Redis)
	defer q.Shutdown()

	e := echo.New()
	e.HideBanner = true
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())
	e.Use(echoMiddleware.CORS())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	mw := middleware.NewMiddleware(cfg)
	adapters := provider.NewFactory(cfg)

	notifSvc := notification.Init(e, db, cfg, mw)
	integSvc, integRepo := integration.Init(e, db, adapters, cfg, mw)
	_, eventRepo := event.Init(e, db, integRepo, integSvc, adapters, notifSvc, mw)
	availability.Init(e, db, eventRepo, cfg, mw)
	syncSvc, err := syncModule.Init(e, db, eventRepo, integRepo, integSvc, adapters, redisCache, q, cfg, mw)
	if err != nil {
		return fmt.Errorf("init sync module: %w", err)
	}
	webhook.Init(e, db, integRepo, integSvc, syncSvc, adapters, redisCache, cfg)

	if err := q.Start(); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("Server:Start:Error", "error", err)
		}
	}()
	logger.Info("Server:Started", "addr", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()
	logger.Info("Server:ShuttingDown")
	return e.Shutdown(ctx)
}
