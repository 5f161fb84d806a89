package dao

import (
	"context"
	"sync"
	"time"

	"orgtalk/apps/ptt-service/model"
)

type memSession struct {
	session   model.Session
	expiresAt time.Time
}

// memorySessionStore 内存实现，测试用
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*memSession
	now      func() time.Time
}

// NewMemorySessionStore 创建内存存储实例
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		sessions: make(map[string]*memSession),
		now:      time.Now,
	}
}

// NewMemorySessionStoreWithClock 创建带注入时钟的内存存储，测试TTL过期用
func NewMemorySessionStoreWithClock(now func() time.Time) SessionStore {
	return &memorySessionStore{
		sessions: make(map[string]*memSession),
		now:      now,
	}
}

// live 返回未过期的会话，过期条目顺手清掉
func (s *memorySessionStore) live(conversationID string) *memSession {
	entry, ok := s.sessions[conversationID]
	if !ok {
		return nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.sessions, conversationID)
		return nil
	}
	return entry
}

func (s *memorySessionStore) Acquire(ctx context.Context, conversationID string, userID int64, startedAt int64, ttl time.Duration) (bool, *model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry := s.live(conversationID); entry != nil {
		clone := entry.session
		return false, &clone, nil
	}

	s.sessions[conversationID] = &memSession{
		session: model.Session{
			ConversationID: conversationID,
			SpeakerID:      userID,
			StartedAt:      startedAt,
		},
		expiresAt: s.now().Add(ttl),
	}
	return true, nil, nil
}

func (s *memorySessionStore) Refresh(ctx context.Context, conversationID string, userID int64, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.live(conversationID)
	if entry == nil || entry.session.SpeakerID != userID {
		return false, nil
	}
	entry.expiresAt = s.now().Add(ttl)
	return true, nil
}

func (s *memorySessionStore) Release(ctx context.Context, conversationID string, userID int64) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.live(conversationID)
	if entry == nil || entry.session.SpeakerID != userID {
		return nil, nil
	}
	delete(s.sessions, conversationID)
	clone := entry.session
	return &clone, nil
}

func (s *memorySessionStore) Get(ctx context.Context, conversationID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.live(conversationID)
	if entry == nil {
		return nil, nil
	}
	clone := entry.session
	return &clone, nil
}
