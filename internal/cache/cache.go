package cache

import "time"

// Cache 读穿缓存的统一接口。
//
// 值以序列化后的字节存放，便于内存实现与 Redis 实现互换。
// 所有实现都是尽力而为：缓存层的任何故障对调用方表现为未命中。
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}
