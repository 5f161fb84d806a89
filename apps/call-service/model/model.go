package model

import (
	"time"

	"orgtalk/api/rest"
)

// Call 通话记录
type Call struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	ConversationID string          `gorm:"size:128;not null;index" json:"conversation_id"`
	InitiatorID    int64           `gorm:"not null" json:"initiator_id"`
	Type           rest.CallType   `gorm:"size:16;not null" json:"type"`
	Status         rest.CallStatus `gorm:"size:16;not null;index" json:"status"`
	StartedAt      *time.Time      `json:"started_at,omitempty"` // 接通时间
	EndedAt        *time.Time      `json:"ended_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CallParticipant 通话参与者
type CallParticipant struct {
	ID       int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CallID   int64      `gorm:"not null;index" json:"call_id"`
	UserID   int64      `gorm:"not null" json:"user_id"`
	JoinedAt *time.Time `json:"joined_at,omitempty"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
	Muted    bool       `json:"muted"`
	Video    bool       `json:"video"`
}

// CanTransition 判断通话状态迁移是否合法，迁移单向不允许回退
// ringing -> active/missed/declined, active -> ended
func CanTransition(from, to rest.CallStatus) bool {
	switch from {
	case rest.CallStatusRinging:
		return to == rest.CallStatusActive || to == rest.CallStatusMissed || to == rest.CallStatusDeclined
	case rest.CallStatusActive:
		return to == rest.CallStatusEnded
	}
	return false
}

// MissedMessageType 未接来电系统消息的消息类型
func MissedMessageType(t rest.CallType) rest.MessageType {
	if t == rest.CallTypeVideo {
		return rest.MessageTypeMissedVideoCall
	}
	return rest.MessageTypeMissedVoiceCall
}

// ToEvent 转换为通话事件
func (c *Call) ToEvent() *rest.CallEvent {
	event := &rest.CallEvent{
		CallID:      c.ID,
		InitiatorID: c.InitiatorID,
		Type:        c.Type,
		Status:      c.Status,
	}
	if c.StartedAt != nil {
		event.StartedAt = c.StartedAt.UnixMilli()
	}
	if c.EndedAt != nil {
		event.EndedAt = c.EndedAt.UnixMilli()
	}
	return event
}
