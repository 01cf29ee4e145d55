package confirm

import (
	"sync"
	"time"
)

// State 用户当前待确认的破坏性操作。
type State int

const (
	// Idle 没有待确认操作。
	Idle State = iota
	// AwaitingReplace 等待确认"替换现有邮箱"。
	AwaitingReplace
	// AwaitingDelete 等待确认"删除现有邮箱"。
	AwaitingDelete
)

// String 返回状态的可读名称。
func (s State) String() string {
	switch s {
	case AwaitingReplace:
		return "awaiting_replace"
	case AwaitingDelete:
		return "awaiting_delete"
	default:
		return "idle"
	}
}

const defaultTTL = 5 * time.Minute

// Manager 管理每用户的确认状态。
//
// 每个用户最多持有一个待确认操作，发起新的确认会顶掉旧的。
// 状态只存在于内存中，进程重启即全部回到 Idle；条目携带
// 过期时间，过期后残留的"确认"不会作用到已经变化的上下文上。
type Manager struct {
	mu      sync.Mutex
	pending map[string]entry
	ttl     time.Duration
}

type entry struct {
	state    State
	deadline time.Time
}

// NewManager 创建确认状态管理器，ttl 为 0 时使用默认 5 分钟。
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Manager{
		pending: make(map[string]entry),
		ttl:     ttl,
	}
}

// Begin 为用户登记一个待确认操作，替换任何已有的待确认操作。
func (m *Manager) Begin(userID string, state State) {
	if state == Idle {
		m.Clear(userID)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending[userID] = entry{
		state:    state,
		deadline: time.Now().Add(m.ttl),
	}
}

// Peek 返回用户当前的待确认状态，过期条目视同 Idle 并被清除。
func (m *Manager) Peek(userID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.pending[userID]
	if !ok {
		return Idle
	}
	if time.Now().After(e.deadline) {
		delete(m.pending, userID)
		return Idle
	}

	return e.state
}

// Resolve 取出并清除用户的待确认状态。
//
// 无论确认结果如何（成功、失败或取消），状态都回到 Idle，
// 调用方据返回值决定是否执行动作。
func (m *Manager) Resolve(userID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.pending[userID]
	if !ok {
		return Idle
	}
	delete(m.pending, userID)

	if time.Now().After(e.deadline) {
		return Idle
	}

	return e.state
}

// Clear 清除用户的待确认状态。
func (m *Manager) Clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, userID)
}
