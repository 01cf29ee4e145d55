package ops

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tempmail/bot/internal/config"
	"tempmail/bot/internal/provider"
	"tempmail/bot/internal/storage"
)

const providerProbeTimeout = 5 * time.Second

// Server 运维 HTTP 服务：健康检查、Prometheus 指标与统计接口。
//
// 机器人本体不对外提供 HTTP 接口，这个服务只给部署环境用。
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer 创建运维服务。
func NewServer(cfg config.OpsConfig, store storage.Store, client *provider.Client, logger *zap.Logger) *Server {
	health := healthcheck.NewHandler()
	// 存活：本进程和它的存储还能工作
	health.AddLivenessCheck("storage", func() error {
		return store.Health()
	})
	// 就绪：邮件服务商可达，探测走缓存所以不会放大上游流量
	health.AddReadinessCheck("provider", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), providerProbeTimeout)
		defer cancel()
		return client.Health(ctx)
	})

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := gincors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	router.GET("/healthz", gin.WrapF(health.LiveEndpoint))
	router.GET("/readyz", gin.WrapF(health.ReadyEndpoint))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.GET("/stats", statsHandler(store, logger))

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// statsHandler 返回机器人累计统计。
func statsHandler(store storage.Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := store.GetStats()
		if err != nil {
			logger.Error("failed to load stats", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
			return
		}

		sessions, err := store.ListAll()
		if err != nil {
			logger.Error("failed to list sessions", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}

		banned, err := store.BannedUsers()
		if err != nil {
			logger.Error("failed to list banned users", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list banned users"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"total_users":      stats.TotalUsers,
			"active_sessions":  len(sessions),
			"created_emails":   stats.CreatedEmails,
			"total_broadcasts": stats.TotalBroadcasts,
			"banned_users":     len(banned),
		})
	}
}

// Start 启动监听，阻塞直到服务关闭。
func (s *Server) Start() error {
	s.logger.Info("ops server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ops server failed: %w", err)
	}
	return nil
}

// Shutdown 优雅关停。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
