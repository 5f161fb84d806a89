package dao

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/message-service/model"
)

// memoryDAO 内存实现，测试与单机演示用
type memoryDAO struct {
	mu       sync.RWMutex
	messages map[int64]*model.Message
	statuses map[string]*model.MessageStatus // key: messageID:recipientID
}

// NewMemoryDAO 创建内存消息DAO
func NewMemoryDAO() MessageDAO {
	return &memoryDAO{
		messages: make(map[int64]*model.Message),
		statuses: make(map[string]*model.MessageStatus),
	}
}

func statusKey(messageID, recipientID int64) string {
	return fmt.Sprintf("%d:%d", messageID, recipientID)
}

func (d *memoryDAO) EnsureIndexes(ctx context.Context) error { return nil }

func (d *memoryDAO) SaveMessage(ctx context.Context, msg *model.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.messages[msg.MessageID]; exists {
		return nil
	}
	cp := *msg
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	d.messages[msg.MessageID] = &cp
	return nil
}

func (d *memoryDAO) GetMessage(ctx context.Context, messageID int64) (*model.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	msg, ok := d.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("消息不存在: MessageID=%d", messageID)
	}
	cp := *msg
	return &cp, nil
}

func (d *memoryDAO) ListHistory(ctx context.Context, conversationID string, page, size int) ([]*model.Message, int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var all []*model.Message
	for _, msg := range d.messages {
		if msg.ConversationID == conversationID {
			cp := *msg
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp > all[j].Timestamp })

	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(all) {
		return nil, int64(len(all)), nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (d *memoryDAO) MarkEdited(ctx context.Context, messageID, senderID int64, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg, ok := d.messages[messageID]
	if !ok || msg.SenderID != senderID || msg.Deleted {
		return fmt.Errorf("消息不存在或无权限编辑: MessageID=%d", messageID)
	}
	msg.Content = content
	msg.Edited = true
	msg.UpdatedAt = time.Now()
	return nil
}

func (d *memoryDAO) MarkDeleted(ctx context.Context, messageID, userID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg, ok := d.messages[messageID]
	if !ok || msg.SenderID != userID {
		return fmt.Errorf("消息不存在或无权限删除: MessageID=%d", messageID)
	}
	msg.Deleted = true
	msg.Content = ""
	msg.MediaRef = ""
	msg.UpdatedAt = time.Now()
	return nil
}

func (d *memoryDAO) AdvanceStatus(ctx context.Context, messageID, recipientID int64, status rest.DeliveryState, at int64) error {
	if status.Rank() < 0 {
		return fmt.Errorf("非法的投递状态: %s", status)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	key := statusKey(messageID, recipientID)
	st, ok := d.statuses[key]
	if !ok {
		st = &model.MessageStatus{
			MessageID:   messageID,
			RecipientID: recipientID,
			Status:      string(rest.DeliveryStateSent),
			UpdatedAt:   time.Now(),
		}
		d.statuses[key] = st
	}

	if !model.CanAdvance(rest.DeliveryState(st.Status), status) {
		return nil
	}
	st.Status = string(status)
	st.UpdatedAt = time.Now()
	switch status {
	case rest.DeliveryStateDelivered:
		if st.DeliveredAt == 0 {
			st.DeliveredAt = at
		}
	case rest.DeliveryStateRead:
		if st.ReadAt == 0 {
			st.ReadAt = at
		}
	}
	return nil
}

func (d *memoryDAO) ListStatuses(ctx context.Context, messageID int64) ([]*model.MessageStatus, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var statuses []*model.MessageStatus
	for _, st := range d.statuses {
		if st.MessageID == messageID {
			cp := *st
			statuses = append(statuses, &cp)
		}
	}
	return statuses, nil
}
