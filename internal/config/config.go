package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BotConfig 定义机器人主体配置
type BotConfig struct {
	Token    string   // 聊天平台的机器人令牌
	AdminIDs []string // 管理员用户 ID 列表
}

// ProviderConfig 定义邮件服务商 API 配置
type ProviderConfig struct {
	BaseURL  string        // 服务商 API 根地址，默认 "https://api.mail.gw"
	Timeout  time.Duration // 单次请求超时，默认 30 秒
	CacheTTL time.Duration // 域名与邮件详情的缓存时长，默认 60 秒
}

// ThrottleConfig 定义消息限流配置
type ThrottleConfig struct {
	Interval time.Duration // 同一用户两条消息间的最小间隔，默认 2 秒
}

// ConfirmConfig 定义确认流程配置
type ConfirmConfig struct {
	TTL time.Duration // 待确认状态的有效期，默认 5 分钟
}

// StorageConfig 定义持久化存储配置
type StorageConfig struct {
	Type string // 存储类型: "filesystem"、"sqlite" 或 "memory"
	Path string // 数据目录（filesystem）或数据库文件路径（sqlite）
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Enabled  bool   // 是否用 Redis 做服务商响应缓存，默认关闭（进程内缓存）
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// WorkerConfig 定义事件处理协程池配置
type WorkerConfig struct {
	Count     int // 并发处理事件的协程数，默认 8
	QueueSize int // 待处理事件队列长度，默认 128
}

// OpsConfig 定义运维 HTTP 服务配置（健康检查、指标、统计）
type OpsConfig struct {
	Enabled        bool     // 是否启动运维服务，默认开启
	Host           string   // 监听地址，默认 "0.0.0.0"
	Port           int      // 监听端口，默认 8080
	AllowedOrigins []string // CORS 允许的来源列表，"*" 表示全部
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Bot         BotConfig      // 机器人配置
	Provider    ProviderConfig // 邮件服务商配置
	Throttle    ThrottleConfig // 限流配置
	Confirm     ConfirmConfig  // 确认流程配置
	DefaultLang string         // 默认界面语言，默认 "ru"
	Storage     StorageConfig  // 存储配置
	Redis       RedisConfig    // Redis 配置
	Workers     WorkerConfig   // 协程池配置
	Ops         OpsConfig      // 运维服务配置
	Log         LogConfig      // 日志配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: MAILBOT_
// 例如: MAILBOT_BOT_TOKEN, MAILBOT_STORAGE_TYPE
//
// 返回值:
//   - *Config: 加载成功的配置对象
//   - error: 配置验证失败时返回错误
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("mailbot")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("bot.token", "")
	viper.SetDefault("bot.admin_ids", "")
	viper.SetDefault("provider.base_url", "https://api.mail.gw")
	viper.SetDefault("provider.timeout", "30s")
	viper.SetDefault("provider.cache_ttl", "60s")
	viper.SetDefault("throttle.interval", "2s")
	viper.SetDefault("confirm.ttl", "5m")
	viper.SetDefault("default_lang", "ru")
	viper.SetDefault("storage.type", "filesystem")
	viper.SetDefault("storage.path", "data")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("workers.count", 8)
	viper.SetDefault("workers.queue_size", 128)
	viper.SetDefault("ops.enabled", true)
	viper.SetDefault("ops.host", "0.0.0.0")
	viper.SetDefault("ops.port", 8080)
	viper.SetDefault("ops.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)

	token := viper.GetString("bot.token")
	if token == "" {
		return nil, fmt.Errorf("bot token is required, set MAILBOT_BOT_TOKEN")
	}

	baseURL := strings.TrimRight(viper.GetString("provider.base_url"), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("provider.base_url must not be empty")
	}

	timeout, err := time.ParseDuration(viper.GetString("provider.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid provider.timeout: %w", err)
	}

	cacheTTL, err := time.ParseDuration(viper.GetString("provider.cache_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid provider.cache_ttl: %w", err)
	}

	interval, err := time.ParseDuration(viper.GetString("throttle.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid throttle.interval: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("throttle.interval must be positive")
	}

	confirmTTL, err := time.ParseDuration(viper.GetString("confirm.ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid confirm.ttl: %w", err)
	}

	storageType := strings.ToLower(viper.GetString("storage.type"))
	switch storageType {
	case "filesystem", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("unknown storage.type %q, want filesystem, sqlite or memory", storageType)
	}

	workerCount := viper.GetInt("workers.count")
	if workerCount <= 0 {
		workerCount = 8
	}
	queueSize := viper.GetInt("workers.queue_size")
	if queueSize <= 0 {
		queueSize = 128
	}

	corsOrigins := parseList(viper.GetString("ops.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Bot: BotConfig{
			Token:    token,
			AdminIDs: parseList(viper.GetString("bot.admin_ids")),
		},
		Provider: ProviderConfig{
			BaseURL:  baseURL,
			Timeout:  timeout,
			CacheTTL: cacheTTL,
		},
		Throttle: ThrottleConfig{
			Interval: interval,
		},
		Confirm: ConfirmConfig{
			TTL: confirmTTL,
		},
		DefaultLang: viper.GetString("default_lang"),
		Storage: StorageConfig{
			Type: storageType,
			Path: viper.GetString("storage.path"),
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Workers: WorkerConfig{
			Count:     workerCount,
			QueueSize: queueSize,
		},
		Ops: OpsConfig{
			Enabled:        viper.GetBool("ops.enabled"),
			Host:           viper.GetString("ops.host"),
			Port:           viper.GetInt("ops.port"),
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 注意：
//   - 如果文件不存在，静默失败（.env 是可选的）
//   - 环境变量不会被覆盖（已存在的环境变量优先级更高）
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
