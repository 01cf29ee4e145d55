package domain

import (
	"time"
)

// Credentials 一个临时邮箱在服务商侧的完整凭据。
//
// 四个字段要么同时写入、要么同时清空：缺少任意一个字段的会话
// 一律视为"没有活动邮箱"。
type Credentials struct {
	Email     string `json:"email" gorm:"type:varchar(255)"`
	Password  string `json:"password" gorm:"type:varchar(255)"`
	Token     string `json:"token" gorm:"type:varchar(512)"`
	AccountID string `json:"account_id" gorm:"type:varchar(64)"`
}

// Complete 判断四个凭据字段是否全部就位。
func (c Credentials) Complete() bool {
	return c.Email != "" && c.Password != "" && c.Token != "" && c.AccountID != ""
}

// Session 表示一个聊天用户与其临时邮箱的持久化绑定。
type Session struct {
	UserID      string    `json:"-" gorm:"primaryKey;type:varchar(64)"`
	Credentials `gorm:"embedded"`
	Lang        string    `json:"lang,omitempty" gorm:"type:varchar(8)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasMailbox 判断会话是否持有一个完整可用的邮箱。
func (s *Session) HasMailbox() bool {
	return s != nil && s.Credentials.Complete()
}
