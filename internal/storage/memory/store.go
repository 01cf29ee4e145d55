package memory

import (
	"sort"
	"sync"
	"time"

	"tempmail/bot/internal/domain"
)

// Store 使用内存保存会话与机器人状态，主要用于开发验证和测试。
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]domain.Session
	languages  map[string]string
	banned     map[string]struct{}
	stats      domain.Stats
	broadcasts []domain.Broadcast
}

// NewStore 创建内存存储实例。
func NewStore() *Store {
	return &Store{
		sessions:  make(map[string]domain.Session),
		languages: make(map[string]string),
		banned:    make(map[string]struct{}),
		stats:     domain.Stats{CreatedAt: time.Now().UTC()},
	}
}

// Get 返回用户会话。
func (s *Store) Get(userID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	session.UserID = userID

	return &session, nil
}

// UpsertCredentials 整体写入用户的邮箱凭据。
func (s *Store) UpsertCredentials(userID string, creds domain.Credentials, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	session, ok := s.sessions[userID]
	if !ok {
		session = domain.Session{CreatedAt: now}
	}

	session.Credentials = creds
	if lang != "" {
		session.Lang = lang
	}
	session.UpdatedAt = now
	s.sessions[userID] = session

	return nil
}

// Delete 删除用户会话。
func (s *Store) Delete(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[userID]; !ok {
		return false, nil
	}
	delete(s.sessions, userID)

	return true, nil
}

// ListAll 返回全部会话。
func (s *Store) ListAll() (map[string]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make(map[string]domain.Session, len(s.sessions))
	for userID, session := range s.sessions {
		session.UserID = userID
		all[userID] = session
	}

	return all, nil
}

// GetLanguage 返回用户语言偏好。
func (s *Store) GetLanguage(userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.languages[userID], nil
}

// SetLanguage 设置用户语言偏好。
func (s *Store) SetLanguage(userID, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.languages[userID] = lang
	return nil
}

// IsBanned 判断用户是否被封禁。
func (s *Store) IsBanned(userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.banned[userID]
	return ok, nil
}

// Ban 将用户加入封禁名单。
func (s *Store) Ban(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banned[userID] = struct{}{}
	return nil
}

// Unban 将用户移出封禁名单。
func (s *Store) Unban(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.banned, userID)
	return nil
}

// BannedUsers 返回封禁名单。
func (s *Store) BannedUsers() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	banned := make([]string, 0, len(s.banned))
	for id := range s.banned {
		banned = append(banned, id)
	}
	sort.Strings(banned)

	return banned, nil
}

// GetStats 返回全局统计。
func (s *Store) GetStats() (*domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	return &stats, nil
}

// UpdateStats 应用统计变更。
func (s *Store) UpdateStats(update func(*domain.Stats)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	update(&s.stats)
	s.stats.UpdatedAt = time.Now().UTC()

	return nil
}

// IncrementCreatedEmails 递增已创建邮箱计数。
func (s *Store) IncrementCreatedEmails() error {
	return s.UpdateStats(func(stats *domain.Stats) {
		stats.CreatedEmails++
	})
}

// AddBroadcast 追加群发记录。
func (s *Store) AddBroadcast(record domain.Broadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.broadcasts = append(s.broadcasts, record)
	s.stats.TotalBroadcasts++

	return nil
}

// Broadcasts 返回群发历史。
func (s *Store) Broadcasts() ([]domain.Broadcast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.Broadcast, len(s.broadcasts))
	copy(records, s.broadcasts)

	return records, nil
}

// Health 内存存储永远可用。
func (s *Store) Health() error {
	return nil
}

// Close 内存存储无需释放资源。
func (s *Store) Close() error {
	return nil
}
