package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis 基于 Redis 的缓存实现。
//
// 用于多实例部署时共享域名列表等读多写少的数据；
// Redis 不可达时所有操作降级为未命中，不影响主流程。
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis 创建 Redis 缓存实例并验证连通性。
func NewRedis(addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{
		client: client,
		prefix: "mailbot:cache:",
		ttl:    ttl,
	}, nil
}

// Get 获取缓存值。
func (c *Redis) Get(key string) ([]byte, bool) {
	data, err := c.client.Get(context.Background(), c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set 设置缓存值，ttl 为 0 时使用默认 TTL。
func (c *Redis) Set(key string, value []byte, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.ttl
	}
	c.client.Set(context.Background(), c.prefix+key, value, ttl)
}

// Delete 删除缓存值。
func (c *Redis) Delete(key string) {
	c.client.Del(context.Background(), c.prefix+key)
}

// Close 关闭 Redis 连接。
func (c *Redis) Close() error {
	return c.client.Close()
}
