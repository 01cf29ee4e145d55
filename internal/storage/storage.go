package storage

import (
	"tempmail/bot/internal/domain"
)

// SessionStore 定义用户邮箱会话的持久化操作。
//
// 凭据的写入与清空以 domain.Credentials 为单位，四个字段
// 不可能被部分更新。
type SessionStore interface {
	// Get 返回用户会话，不存在时返回 domain.ErrNotFound。
	Get(userID string) (*domain.Session, error)

	// UpsertCredentials 整体写入用户的邮箱凭据并刷新 updated_at，
	// 记录不存在时创建并填充 created_at。
	UpsertCredentials(userID string, creds domain.Credentials, lang string) error

	// Delete 删除用户会话，返回删除前记录是否存在。
	Delete(userID string) (bool, error)

	// ListAll 返回全部会话，供统计与群发使用。
	ListAll() (map[string]domain.Session, error)
}

// BotStore 定义机器人全局状态（语言偏好、封禁名单、统计、群发记录）
// 的持久化操作。
type BotStore interface {
	GetLanguage(userID string) (string, error)
	SetLanguage(userID, lang string) error

	IsBanned(userID string) (bool, error)
	Ban(userID string) error
	Unban(userID string) error
	BannedUsers() ([]string, error)

	GetStats() (*domain.Stats, error)
	UpdateStats(update func(*domain.Stats)) error
	IncrementCreatedEmails() error

	AddBroadcast(record domain.Broadcast) error
	Broadcasts() ([]domain.Broadcast, error)
}

// Store 聚合两类存储，便于统一初始化与健康检查。
type Store interface {
	SessionStore
	BotStore

	Health() error
	Close() error
}
