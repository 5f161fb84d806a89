package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"orgtalk/api/rest"
)

// 集合名
const (
	CollectionMessages      = "messages"
	CollectionMessageStatus = "message_status"
)

// Message 消息文档
// message_id唯一索引承担at-least-once投递下的幂等保护
// 删除是墓碑状态，文档不做物理删除
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	MessageID      int64              `bson:"message_id"`
	ConversationID string             `bson:"conversation_id"`
	SenderID       int64              `bson:"sender_id"`
	Type           string             `bson:"type"`
	Content        string             `bson:"content"`
	MediaRef       string             `bson:"media_ref,omitempty"`
	ReplyToID      int64              `bson:"reply_to_id,omitempty"` // 仅存ID引用，原文被删时引用仍可表达
	Forwarded      bool               `bson:"forwarded,omitempty"`
	ForwardFromID  int64              `bson:"forward_from_id,omitempty"`
	ForwardHops    int32              `bson:"forward_hops,omitempty"`
	Edited         bool               `bson:"edited"`
	Deleted        bool               `bson:"deleted"`
	Timestamp      int64              `bson:"timestamp"` // Unix毫秒
	ExpireAt       int64              `bson:"expire_at,omitempty"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at"`
}

// MessageStatus 单接收者的投递状态记录
// (message_id, recipient_id)唯一，状态只前进不后退
// delivered_at / read_at 各自最多写入一次
type MessageStatus struct {
	MessageID   int64     `bson:"message_id"`
	RecipientID int64     `bson:"recipient_id"`
	Status      string    `bson:"status"`
	DeliveredAt int64     `bson:"delivered_at,omitempty"`
	ReadAt      int64     `bson:"read_at,omitempty"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// CanAdvance 判断投递状态是否允许从from前进到to
// 同状态重复写视为幂等no-op，不算前进
func CanAdvance(from, to rest.DeliveryState) bool {
	fr, tr := from.Rank(), to.Rank()
	if fr < 0 || tr < 0 {
		return false
	}
	return tr > fr
}

// ToWire 转换为推送流中的消息体
func (m *Message) ToWire() *rest.WireMessage {
	return &rest.WireMessage{
		MessageID:      m.MessageID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Type:           rest.MessageType(m.Type),
		Content:        m.Content,
		MediaRef:       m.MediaRef,
		ReplyToID:      m.ReplyToID,
		Forwarded:      m.Forwarded,
		ForwardFromID:  m.ForwardFromID,
		ForwardHops:    m.ForwardHops,
		Edited:         m.Edited,
		Deleted:        m.Deleted,
		Timestamp:      m.Timestamp,
		ExpireAt:       m.ExpireAt,
	}
}
