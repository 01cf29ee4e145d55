package filesystem

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"tempmail/bot/internal/domain"
)

// Store 基于 JSON 文件的存储实现。
//
// 两个文件各自持有一把互斥锁，整个读-改-写序列在锁内完成；
// 写入先落临时文件再原子重命名，并发更新不会互相覆盖。
type Store struct {
	sessionsMu   sync.Mutex
	stateMu      sync.Mutex
	sessionsPath string
	statePath    string
}

// botState state.json 的磁盘结构。
type botState struct {
	UserLanguages map[string]string  `json:"user_languages"`
	BannedUsers   []string           `json:"banned_users"`
	Stats         domain.Stats       `json:"stats"`
	Broadcasts    []domain.Broadcast `json:"broadcasts"`
}

// NewStore 创建文件存储实例并确保数据目录存在。
func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Store{
		sessionsPath: filepath.Join(basePath, "sessions.json"),
		statePath:    filepath.Join(basePath, "state.json"),
	}, nil
}

// ========== 会话存储 ==========

// Get 返回用户会话。
func (s *Store) Get(userID string) (*domain.Session, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	sessions, err := s.loadSessions()
	if err != nil {
		return nil, err
	}

	session, ok := sessions[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	session.UserID = userID

	return &session, nil
}

// UpsertCredentials 整体写入用户的邮箱凭据。
func (s *Store) UpsertCredentials(userID string, creds domain.Credentials, lang string) error {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	sessions, err := s.loadSessions()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	session, ok := sessions[userID]
	if !ok {
		session = domain.Session{CreatedAt: now}
	}

	session.Credentials = creds
	if lang != "" {
		session.Lang = lang
	}
	session.UpdatedAt = now
	sessions[userID] = session

	return s.saveSessions(sessions)
}

// Delete 删除用户会话。
func (s *Store) Delete(userID string) (bool, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	sessions, err := s.loadSessions()
	if err != nil {
		return false, err
	}

	if _, ok := sessions[userID]; !ok {
		return false, nil
	}
	delete(sessions, userID)

	if err := s.saveSessions(sessions); err != nil {
		return false, err
	}

	return true, nil
}

// ListAll 返回全部会话。
func (s *Store) ListAll() (map[string]domain.Session, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	sessions, err := s.loadSessions()
	if err != nil {
		return nil, err
	}

	for userID, session := range sessions {
		session.UserID = userID
		sessions[userID] = session
	}

	return sessions, nil
}

// ========== 机器人状态存储 ==========

// GetLanguage 返回用户语言偏好，未设置时返回空字符串。
func (s *Store) GetLanguage(userID string) (string, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	state, err := s.loadState()
	if err != nil {
		return "", err
	}

	return state.UserLanguages[userID], nil
}

// SetLanguage 设置用户语言偏好。
func (s *Store) SetLanguage(userID, lang string) error {
	return s.mutateState(func(state *botState) {
		state.UserLanguages[userID] = lang
	})
}

// IsBanned 判断用户是否被封禁。
func (s *Store) IsBanned(userID string) (bool, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	state, err := s.loadState()
	if err != nil {
		return false, err
	}

	for _, id := range state.BannedUsers {
		if id == userID {
			return true, nil
		}
	}

	return false, nil
}

// Ban 将用户加入封禁名单，重复封禁不报错。
func (s *Store) Ban(userID string) error {
	return s.mutateState(func(state *botState) {
		for _, id := range state.BannedUsers {
			if id == userID {
				return
			}
		}
		state.BannedUsers = append(state.BannedUsers, userID)
	})
}

// Unban 将用户移出封禁名单。
func (s *Store) Unban(userID string) error {
	return s.mutateState(func(state *botState) {
		filtered := state.BannedUsers[:0]
		for _, id := range state.BannedUsers {
			if id != userID {
				filtered = append(filtered, id)
			}
		}
		state.BannedUsers = filtered
	})
}

// BannedUsers 返回封禁名单。
func (s *Store) BannedUsers() ([]string, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	state, err := s.loadState()
	if err != nil {
		return nil, err
	}

	banned := make([]string, len(state.BannedUsers))
	copy(banned, state.BannedUsers)
	sort.Strings(banned)

	return banned, nil
}

// GetStats 返回全局统计。
func (s *Store) GetStats() (*domain.Stats, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	state, err := s.loadState()
	if err != nil {
		return nil, err
	}

	stats := state.Stats
	return &stats, nil
}

// UpdateStats 在锁内应用统计变更并刷新 updated_at。
func (s *Store) UpdateStats(update func(*domain.Stats)) error {
	return s.mutateState(func(state *botState) {
		update(&state.Stats)
		state.Stats.UpdatedAt = time.Now().UTC()
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
	return s.mutateState(func(state *botState) {
		state.Broadcasts = append(state.Broadcasts, record)
		state.Stats.TotalBroadcasts++
	})
}

// Broadcasts 返回群发历史。
func (s *Store) Broadcasts() ([]domain.Broadcast, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	state, err := s.loadState()
	if err != nil {
		return nil, err
	}

	records := make([]domain.Broadcast, len(state.Broadcasts))
	copy(records, state.Broadcasts)

	return records, nil
}

// Health 校验数据目录可写。
func (s *Store) Health() error {
	dir := filepath.Dir(s.sessionsPath)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("storage directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", dir)
	}
	return nil
}

// Close 文件存储无需释放资源。
func (s *Store) Close() error {
	return nil
}

// ========== 文件读写 ==========

func (s *Store) loadSessions() (map[string]domain.Session, error) {
	data, err := os.ReadFile(s.sessionsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]domain.Session), nil
		}
		return nil, fmt.Errorf("failed to read sessions file: %w", err)
	}

	sessions := make(map[string]domain.Session)
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to parse sessions file: %w", err)
	}

	return sessions, nil
}

func (s *Store) saveSessions(sessions map[string]domain.Session) error {
	return atomicWriteJSON(s.sessionsPath, sessions)
}

func (s *Store) loadState() (*botState, error) {
	state := &botState{
		UserLanguages: make(map[string]string),
	}

	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			state.Stats.CreatedAt = time.Now().UTC()
			return state, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if state.UserLanguages == nil {
		state.UserLanguages = make(map[string]string)
	}
	if state.Stats.CreatedAt.IsZero() {
		state.Stats.CreatedAt = time.Now().UTC()
	}

	return state, nil
}

// mutateState 在 stateMu 内完成 state.json 的读-改-写。
func (s *Store) mutateState(mutate func(*botState)) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	state, err := s.loadState()
	if err != nil {
		return err
	}

	mutate(state)

	return atomicWriteJSON(s.statePath, state)
}

// atomicWriteJSON 先写临时文件再重命名，崩溃时不会留下半截文件。
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}

	return nil
}
