package cache

import (
	"sync"
	"time"
)

// Memory 进程内 TTL 缓存。
//
// 特点：
// - 互斥锁保护，允许并发调用方
// - 条目携带过期时间戳，Get 时惰性淘汰
// - 后台 janitor 定期清理过期条目
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory 创建内存缓存。
//
// 参数:
//   - ttl: Set 未指定 TTL 时使用的默认过期时间
func NewMemory(ttl time.Duration) *Memory {
	c := &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}

	go c.janitor()

	return c
}

// Get 获取缓存值，过期条目当作未命中并顺手删除。
func (c *Memory) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}

	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认 TTL。
func (c *Memory) Set(key string, value []byte, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete 删除缓存值。
func (c *Memory) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Close 停止后台清理协程。
func (c *Memory) Close() {
	c.once.Do(func() { close(c.done) })
}

// janitor 定期清理过期条目。
func (c *Memory) janitor() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
