package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"orgtalk/api/rest"
)

// CollectionConversations 合并视图镜像集合
const CollectionConversations = "conversations"

// Conversation 单个用户视角的会话合并状态
// (user_id, conversation_id)唯一；Reconciler是该文档的唯一写入方
// AppliedSeq记录最近应用的事件序号，at-least-once重放靠它幂等
// ReadSeq是显式已读的权威覆盖标记，之前的陈旧合并不得再抬高未读数
type Conversation struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ConversationID string             `bson:"conversation_id"`
	UserID         int64              `bson:"user_id"`
	Type           string             `bson:"type"`
	Participants   []int64            `bson:"participants"`
	LastMessage    *rest.WireMessage  `bson:"last_message,omitempty"`
	LastMessageAt  int64              `bson:"last_message_at"` // Unix毫秒
	UnreadCount    int                `bson:"unread_count"`
	ReadSeq        int64              `bson:"read_seq"`
	AppliedSeq     int64              `bson:"applied_seq"`
	Muted          bool               `bson:"muted"`
	MutedUntil     int64              `bson:"muted_until,omitempty"`
	Archived       bool               `bson:"archived"`
	Deleted        bool               `bson:"deleted"`
	UpdatedAt      time.Time          `bson:"updated_at"`
}

// ToSummary 转换为对外的会话摘要
func (c *Conversation) ToSummary() *rest.ConversationSummary {
	return &rest.ConversationSummary{
		ConversationID: c.ConversationID,
		Type:           rest.ConversationType(c.Type),
		Participants:   c.Participants,
		LastMessage:    c.LastMessage,
		LastMessageAt:  c.LastMessageAt,
		UnreadCount:    c.UnreadCount,
		ReadSeq:        c.ReadSeq,
		Muted:          c.Muted,
		MutedUntil:     c.MutedUntil,
		Archived:       c.Archived,
		Deleted:        c.Deleted,
	}
}

// Clone 深拷贝（LastMessage按值复制）
func (c *Conversation) Clone() *Conversation {
	cp := *c
	if c.LastMessage != nil {
		msg := *c.LastMessage
		cp.LastMessage = &msg
	}
	if c.Participants != nil {
		cp.Participants = append([]int64(nil), c.Participants...)
	}
	return &cp
}
