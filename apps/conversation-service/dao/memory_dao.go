package dao

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orgtalk/apps/conversation-service/model"
)

// memoryDAO 内存实现，测试与单机演示用
type memoryDAO struct {
	mu   sync.RWMutex
	rows map[string]*model.Conversation // key: userID:conversationID
}

// NewMemoryDAO 创建内存会话DAO
func NewMemoryDAO() ConversationDAO {
	return &memoryDAO{rows: make(map[string]*model.Conversation)}
}

func rowKey(userID int64, conversationID string) string {
	return fmt.Sprintf("%d:%s", userID, conversationID)
}

func (d *memoryDAO) EnsureIndexes(ctx context.Context) error { return nil }

func (d *memoryDAO) Upsert(ctx context.Context, conv *model.Conversation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := conv.Clone()
	cp.UpdatedAt = time.Now()
	d.rows[rowKey(conv.UserID, conv.ConversationID)] = cp
	return nil
}

func (d *memoryDAO) Get(ctx context.Context, userID int64, conversationID string) (*model.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	conv, ok := d.rows[rowKey(userID, conversationID)]
	if !ok {
		return nil, nil
	}
	return conv.Clone(), nil
}

func (d *memoryDAO) ListByUser(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var result []*model.Conversation
	for _, conv := range d.rows {
		if conv.UserID == userID {
			result = append(result, conv.Clone())
		}
	}
	return result, nil
}

func (d *memoryDAO) ListByConversation(ctx context.Context, conversationID string) ([]*model.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var result []*model.Conversation
	for _, conv := range d.rows {
		if conv.ConversationID == conversationID {
			result = append(result, conv.Clone())
		}
	}
	return result, nil
}
