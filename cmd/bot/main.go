package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempmail/bot/internal/bot"
	"tempmail/bot/internal/bot/handlers"
	"tempmail/bot/internal/cache"
	"tempmail/bot/internal/config"
	"tempmail/bot/internal/confirm"
	"tempmail/bot/internal/i18n"
	"tempmail/bot/internal/logger"
	"tempmail/bot/internal/middleware"
	"tempmail/bot/internal/monitoring"
	"tempmail/bot/internal/ops"
	"tempmail/bot/internal/provider"
	"tempmail/bot/internal/service"
	"tempmail/bot/internal/storage"
	"tempmail/bot/internal/storage/filesystem"
	"tempmail/bot/internal/storage/gormstore"
	"tempmail/bot/internal/storage/memory"
	"tempmail/bot/internal/transport/console"
)

// main 启动一次性邮箱机器人。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting mailbot",
		zap.String("log_level", cfg.Log.Level),
		zap.String("storage", cfg.Storage.Type),
		zap.String("default_lang", cfg.DefaultLang),
		zap.Int("admins", len(cfg.Bot.AdminIDs)),
	)

	// 初始化存储层
	var store storage.Store
	switch cfg.Storage.Type {
	case "filesystem":
		store, err = filesystem.NewStore(cfg.Storage.Path)
	case "sqlite":
		store, err = gormstore.NewStore(cfg.Storage.Path)
	case "memory":
		store = memory.NewStore()
	}
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}
	defer store.Close()
	log.Info("storage ready", zap.String("type", cfg.Storage.Type), zap.String("path", cfg.Storage.Path))

	// 服务商响应缓存：默认进程内，可切换 Redis
	var providerCache cache.Cache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedis(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Provider.CacheTTL)
		if err != nil {
			panic(fmt.Sprintf("failed to connect to redis: %v", err))
		}
		providerCache = redisCache
		log.Info("using redis cache", zap.String("address", cfg.Redis.Address))
	} else {
		memCache := cache.NewMemory(cfg.Provider.CacheTTL)
		defer memCache.Close()
		providerCache = memCache
	}

	metrics := monitoring.NewMetrics()

	client := provider.NewClient(cfg.Provider.BaseURL, providerCache, log,
		provider.WithTimeout(cfg.Provider.Timeout),
		provider.WithCacheTTL(cfg.Provider.CacheTTL),
	)

	translator, err := i18n.NewTranslator(cfg.DefaultLang)
	if err != nil {
		panic(fmt.Sprintf("failed to load translations: %v", err))
	}

	mail := service.NewMailService(client, store, store, log, metrics)
	confirmMgr := confirm.NewManager(cfg.Confirm.TTL)
	tracker := middleware.NewRateTracker(cfg.Throttle.Interval)

	// 传输层：本地控制台；生产部署换成真实聊天平台的实现
	transport := console.New(os.Stdout, log)

	dispatcher := bot.NewDispatcher(transport, log, metrics, cfg.Workers.Count, cfg.Workers.QueueSize)
	dispatcher.Use(
		middleware.Ban(store, translator, metrics, log),
		middleware.Throttle(tracker, store, translator, metrics, log),
		middleware.Language(store, cfg.DefaultLang, log),
	)
	handlers.New(mail, confirmMgr, store, translator, log, metrics, cfg.Bot.AdminIDs).Register(dispatcher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher.Start()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Ops.Enabled {
		opsServer := ops.NewServer(cfg.Ops, store, client, log)
		g.Go(opsServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return opsServer.Shutdown(shutdownCtx)
		})
	}

	// stdin 读取无法被 ctx 中断，收到信号时直接放弃这个协程
	g.Go(func() error {
		listenErr := make(chan error, 1)
		go func() {
			listenErr <- transport.Listen(gctx, os.Stdin, func(event bot.Event) {
				dispatcher.Dispatch(gctx, event)
			})
		}()

		select {
		case <-gctx.Done():
			return gctx.Err()
		case err := <-listenErr:
			return err
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error("shutdown with error", zap.Error(err))
	}

	// 等在途事件处理完再退出
	dispatcher.Stop()
	log.Info("mailbot stopped")
}
