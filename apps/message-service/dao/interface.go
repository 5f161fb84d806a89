package dao

import (
	"context"

	"orgtalk/api/rest"
	"orgtalk/apps/message-service/model"
)

// MessageDAO 消息数据访问接口
type MessageDAO interface {
	// SaveMessage 保存消息，message_id重复时静默幂等
	SaveMessage(ctx context.Context, msg *model.Message) error

	// GetMessage 按消息ID查询
	GetMessage(ctx context.Context, messageID int64) (*model.Message, error)

	// ListHistory 按会话分页查询历史消息，时间倒序
	ListHistory(ctx context.Context, conversationID string, page, size int) ([]*model.Message, int64, error)

	// MarkEdited 编辑消息内容，仅发送者本人
	MarkEdited(ctx context.Context, messageID, senderID int64, content string) error

	// MarkDeleted 软删除消息，仅发送者本人
	MarkDeleted(ctx context.Context, messageID, userID int64) error

	// AdvanceStatus 推进单接收者投递状态，逆向或重复写为no-op
	AdvanceStatus(ctx context.Context, messageID, recipientID int64, status rest.DeliveryState, at int64) error

	// ListStatuses 查询消息的全部接收者状态记录
	ListStatuses(ctx context.Context, messageID int64) ([]*model.MessageStatus, error)

	// EnsureIndexes 创建唯一索引
	EnsureIndexes(ctx context.Context) error
}
