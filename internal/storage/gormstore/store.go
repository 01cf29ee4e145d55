package gormstore

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tempmail/bot/internal/domain"
)

// Store 基于 SQLite 的存储实现。
//
// 文件存储的事务性替代方案：读-改-写由数据库事务保证，
// 适合并发量超出单文件 JSON 承受范围的部署。
type Store struct {
	db *gorm.DB
}

// sessionEntity 会话表模型。
type sessionEntity struct {
	UserID    string `gorm:"primaryKey;type:varchar(64)"`
	Email     string `gorm:"type:varchar(255)"`
	Password  string `gorm:"type:varchar(255)"`
	Token     string `gorm:"type:varchar(512)"`
	AccountID string `gorm:"type:varchar(64)"`
	Lang      string `gorm:"type:varchar(8)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sessionEntity) TableName() string { return "sessions" }

// botUserEntity 语言偏好与封禁标记。
type botUserEntity struct {
	UserID string `gorm:"primaryKey;type:varchar(64)"`
	Lang   string `gorm:"type:varchar(8)"`
	Banned bool   `gorm:"index"`
}

func (botUserEntity) TableName() string { return "bot_users" }

// statsEntity 全局统计，单行表。
type statsEntity struct {
	ID              int `gorm:"primaryKey"`
	TotalUsers      int
	CreatedEmails   int
	TotalBroadcasts int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (statsEntity) TableName() string { return "stats" }

// broadcastEntity 群发记录表模型。
type broadcastEntity struct {
	ID      string `gorm:"primaryKey;type:varchar(36)"`
	Date    time.Time
	AdminID string `gorm:"type:varchar(64);index"`
	Text    string `gorm:"type:text"`
	Sent    int
	Failed  int
}

func (broadcastEntity) TableName() string { return "broadcasts" }

// NewStore 打开 SQLite 数据库并执行自动迁移。
func NewStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&sessionEntity{},
		&botUserEntity{},
		&statsEntity{},
		&broadcastEntity{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return &Store{db: db}, nil
}

// ========== 会话存储 ==========

// Get 返回用户会话。
func (s *Store) Get(userID string) (*domain.Session, error) {
	var entity sessionEntity
	err := s.db.First(&entity, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return entityToSession(entity), nil
}

// UpsertCredentials 整体写入用户的邮箱凭据。
func (s *Store) UpsertCredentials(userID string, creds domain.Credentials, lang string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var entity sessionEntity
		err := tx.First(&entity, "user_id = ?", userID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			entity = sessionEntity{UserID: userID}
		case err != nil:
			return fmt.Errorf("failed to query session: %w", err)
		}

		entity.Email = creds.Email
		entity.Password = creds.Password
		entity.Token = creds.Token
		entity.AccountID = creds.AccountID
		if lang != "" {
			entity.Lang = lang
		}

		if err := tx.Save(&entity).Error; err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
}

// Delete 删除用户会话。
func (s *Store) Delete(userID string) (bool, error) {
	result := s.db.Delete(&sessionEntity{}, "user_id = ?", userID)
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete session: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListAll 返回全部会话。
func (s *Store) ListAll() (map[string]domain.Session, error) {
	var entities []sessionEntity
	if err := s.db.Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	all := make(map[string]domain.Session, len(entities))
	for _, entity := range entities {
		all[entity.UserID] = *entityToSession(entity)
	}

	return all, nil
}

// ========== 机器人状态存储 ==========

// GetLanguage 返回用户语言偏好。
func (s *Store) GetLanguage(userID string) (string, error) {
	var entity botUserEntity
	err := s.db.First(&entity, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to query bot user: %w", err)
	}
	return entity.Lang, nil
}

// SetLanguage 设置用户语言偏好。
func (s *Store) SetLanguage(userID, lang string) error {
	return s.upsertBotUser(userID, func(u *botUserEntity) {
		u.Lang = lang
	})
}

// IsBanned 判断用户是否被封禁。
func (s *Store) IsBanned(userID string) (bool, error) {
	var entity botUserEntity
	err := s.db.First(&entity, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query bot user: %w", err)
	}
	return entity.Banned, nil
}

// Ban 将用户加入封禁名单。
func (s *Store) Ban(userID string) error {
	return s.upsertBotUser(userID, func(u *botUserEntity) {
		u.Banned = true
	})
}

// Unban 将用户移出封禁名单。
func (s *Store) Unban(userID string) error {
	return s.upsertBotUser(userID, func(u *botUserEntity) {
		u.Banned = false
	})
}

// BannedUsers 返回封禁名单。
func (s *Store) BannedUsers() ([]string, error) {
	var entities []botUserEntity
	if err := s.db.Where("banned = ?", true).Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to list banned users: %w", err)
	}

	banned := make([]string, 0, len(entities))
	for _, entity := range entities {
		banned = append(banned, entity.UserID)
	}
	sort.Strings(banned)

	return banned, nil
}

// GetStats 返回全局统计。
func (s *Store) GetStats() (*domain.Stats, error) {
	entity, err := s.loadStats(s.db)
	if err != nil {
		return nil, err
	}

	return &domain.Stats{
		TotalUsers:      entity.TotalUsers,
		CreatedEmails:   entity.CreatedEmails,
		TotalBroadcasts: entity.TotalBroadcasts,
		CreatedAt:       entity.CreatedAt,
		UpdatedAt:       entity.UpdatedAt,
	}, nil
}

// UpdateStats 在事务内应用统计变更。
func (s *Store) UpdateStats(update func(*domain.Stats)) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		entity, err := s.loadStats(tx)
		if err != nil {
			return err
		}

		stats := domain.Stats{
			TotalUsers:      entity.TotalUsers,
			CreatedEmails:   entity.CreatedEmails,
			TotalBroadcasts: entity.TotalBroadcasts,
			CreatedAt:       entity.CreatedAt,
		}
		update(&stats)

		entity.TotalUsers = stats.TotalUsers
		entity.CreatedEmails = stats.CreatedEmails
		entity.TotalBroadcasts = stats.TotalBroadcasts

		if err := tx.Save(entity).Error; err != nil {
			return fmt.Errorf("failed to save stats: %w", err)
		}
		return nil
	})
}

// IncrementCreatedEmails 递增已创建邮箱计数。
func (s *Store) IncrementCreatedEmails() error {
	return s.UpdateStats(func(stats *domain.Stats) {
		stats.CreatedEmails++
	})
}

// AddBroadcast 追加群发记录并递增群发计数。
func (s *Store) AddBroadcast(record domain.Broadcast) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		entity := broadcastEntity{
			ID:      record.ID,
			Date:    record.Date,
			AdminID: record.AdminID,
			Text:    record.Text,
			Sent:    record.Sent,
			Failed:  record.Failed,
		}
		if err := tx.Create(&entity).Error; err != nil {
			return fmt.Errorf("failed to save broadcast: %w", err)
		}

		stats, err := s.loadStats(tx)
		if err != nil {
			return err
		}
		stats.TotalBroadcasts++
		if err := tx.Save(stats).Error; err != nil {
			return fmt.Errorf("failed to save stats: %w", err)
		}
		return nil
	})
}

// Broadcasts 返回群发历史。
func (s *Store) Broadcasts() ([]domain.Broadcast, error) {
	var entities []broadcastEntity
	if err := s.db.Order("date").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to list broadcasts: %w", err)
	}

	records := make([]domain.Broadcast, 0, len(entities))
	for _, entity := range entities {
		records = append(records, domain.Broadcast{
			ID:      entity.ID,
			Date:    entity.Date,
			AdminID: entity.AdminID,
			Text:    entity.Text,
			Sent:    entity.Sent,
			Failed:  entity.Failed,
		})
	}

	return records, nil
}

// Health 校验数据库连接。
func (s *Store) Health() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Ping()
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func (s *Store) upsertBotUser(userID string, mutate func(*botUserEntity)) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var entity botUserEntity
		err := tx.First(&entity, "user_id = ?", userID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			entity = botUserEntity{UserID: userID}
		case err != nil:
			return fmt.Errorf("failed to query bot user: %w", err)
		}

		mutate(&entity)

		if err := tx.Save(&entity).Error; err != nil {
			return fmt.Errorf("failed to save bot user: %w", err)
		}
		return nil
	})
}

// loadStats 读取单行统计，不存在时创建。
func (s *Store) loadStats(tx *gorm.DB) (*statsEntity, error) {
	var entity statsEntity
	err := tx.First(&entity, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entity = statsEntity{ID: 1, CreatedAt: time.Now().UTC()}
		if err := tx.Create(&entity).Error; err != nil {
			return nil, fmt.Errorf("failed to initialize stats: %w", err)
		}
		return &entity, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	return &entity, nil
}

func entityToSession(entity sessionEntity) *domain.Session {
	return &domain.Session{
		UserID: entity.UserID,
		Credentials: domain.Credentials{
			Email:     entity.Email,
			Password:  entity.Password,
			Token:     entity.Token,
			AccountID: entity.AccountID,
		},
		Lang:      entity.Lang,
		CreatedAt: entity.CreatedAt,
		UpdatedAt: entity.UpdatedAt,
	}
}
