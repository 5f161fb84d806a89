package dao

import (
	"context"

	"orgtalk/apps/conversation-service/model"
)

// ConversationDAO 会话镜像数据访问接口
type ConversationDAO interface {
	// Upsert 写入或覆盖单条(user_id, conversation_id)镜像
	Upsert(ctx context.Context, conv *model.Conversation) error

	// Get 查询单个用户的单个会话
	Get(ctx context.Context, userID int64, conversationID string) (*model.Conversation, error)

	// ListByUser 查询用户的全部会话镜像
	ListByUser(ctx context.Context, userID int64) ([]*model.Conversation, error)

	// ListByConversation 查询一个会话下所有参与者的镜像行
	ListByConversation(ctx context.Context, conversationID string) ([]*model.Conversation, error)

	// EnsureIndexes 创建唯一索引
	EnsureIndexes(ctx context.Context) error
}
