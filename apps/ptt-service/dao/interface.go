package dao

import (
	"context"
	"time"

	"orgtalk/apps/ptt-service/model"
)

// SessionStore 对讲发言权存储
// 带TTL的互斥锁语义：持有者失联后TTL到期自动释放（隐式取消）
type SessionStore interface {
	// Acquire 申请发言权，成功返回true；失败时返回当前持有会话
	Acquire(ctx context.Context, conversationID string, userID int64, startedAt int64, ttl time.Duration) (bool, *model.Session, error)

	// Refresh 持有者续期TTL，非持有者返回false
	Refresh(ctx context.Context, conversationID string, userID int64, ttl time.Duration) (bool, error)

	// Release 持有者释放发言权并返回被释放的会话，非持有者返回nil
	Release(ctx context.Context, conversationID string, userID int64) (*model.Session, error)

	// Get 查询当前持有会话，无人发言返回nil
	Get(ctx context.Context, conversationID string) (*model.Session, error)
}
