package domain

import "time"

// Stats 机器人全局统计。
type Stats struct {
	TotalUsers      int       `json:"total_users"`
	CreatedEmails   int       `json:"created_emails"`
	TotalBroadcasts int       `json:"total_broadcasts"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Broadcast 一次管理员群发的记录。
type Broadcast struct {
	ID      string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Date    time.Time `json:"date"`
	AdminID string    `json:"admin_id" gorm:"type:varchar(64)"`
	Text    string    `json:"text"`
	Sent    int       `json:"sent"`
	Failed  int       `json:"failed"`
}
