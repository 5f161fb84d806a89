package service

import (
	"sort"
	"sync"
	"time"
)

// Tracker 在线与输入状态跟踪器
// 纯内存，进程生命周期内有效，重启后由实时事件重建
// typing走心跳续期协议：开始信号有效3秒，客户端每2秒续报，
// 窗口内没有续报就过期，不依赖显式的停止信号（停止信号可能丢）
type Tracker struct {
	mu       sync.RWMutex
	typing   map[typingKey]time.Time // 过期时刻
	presence map[int64]presenceEntry
	window   time.Duration
	now      func() time.Time // 可注入时钟，测试用
}

type typingKey struct {
	conversationID string
	userID         int64
}

type presenceEntry struct {
	online   bool
	lastSeen int64 // Unix毫秒
}

// NewTracker 创建跟踪器
func NewTracker(window time.Duration) *Tracker {
	return &Tracker{
		typing:   make(map[typingKey]time.Time),
		presence: make(map[int64]presenceEntry),
		window:   window,
		now:      time.Now,
	}
}

// WithClock 注入时钟
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// TypingStart 记录或续期输入状态
func (t *Tracker) TypingStart(conversationID string, userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing[typingKey{conversationID, userID}] = t.now().Add(t.window)
}

// TypingStop 显式停止输入
func (t *Tracker) TypingStop(conversationID string, userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.typing, typingKey{conversationID, userID})
}

// TypingUsers 返回会话内仍在输入的用户，过期条目现场剔除
func (t *Tracker) TypingUsers(conversationID string) []int64 {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	var users []int64
	for key, expiry := range t.typing {
		if key.conversationID != conversationID {
			continue
		}
		if !expiry.After(now) {
			delete(t.typing, key)
			continue
		}
		users = append(users, key.userID)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// Sweep 清理全部过期的输入条目，返回被清理的条目
func (t *Tracker) Sweep() []TypingEntry {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []TypingEntry
	for key, expiry := range t.typing {
		if !expiry.After(now) {
			delete(t.typing, key)
			expired = append(expired, TypingEntry{ConversationID: key.conversationID, UserID: key.userID})
		}
	}
	return expired
}

// TypingEntry 清理结果条目
type TypingEntry struct {
	ConversationID string
	UserID         int64
}

// UpdatePresence 更新在线状态，last-writer-wins
// lastSeen只允许单调前进，带旧时间戳的迟到事件被丢弃
func (t *Tracker) UpdatePresence(userID int64, online bool, lastSeen int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, exists := t.presence[userID]
	if exists && lastSeen < current.lastSeen {
		return false
	}
	t.presence[userID] = presenceEntry{online: online, lastSeen: lastSeen}
	return true
}

// GetPresence 查询单个用户的在线状态
func (t *Tracker) GetPresence(userID int64) (online bool, lastSeen int64, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, exists := t.presence[userID]
	if !exists {
		return false, 0, false
	}
	return entry.online, entry.lastSeen, true
}
