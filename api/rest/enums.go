package rest

// DeliveryState 消息投递状态（封闭枚举，发送端可见的聚合状态也使用该类型）
type DeliveryState string

const (
	DeliveryStateSending   DeliveryState = "sending"   // 本地已发出，服务端尚未确认
	DeliveryStateSent      DeliveryState = "sent"      // 服务端已确认
	DeliveryStateDelivered DeliveryState = "delivered" // 至少一个接收者已投递
	DeliveryStateRead      DeliveryState = "read"      // 全部接收者已读
	DeliveryStateFailed    DeliveryState = "failed"    // 传输层确认永久失败
)

// Valid 校验投递状态取值
func (s DeliveryState) Valid() bool {
	switch s {
	case DeliveryStateSending, DeliveryStateSent, DeliveryStateDelivered, DeliveryStateRead, DeliveryStateFailed:
		return true
	}
	return false
}

// Rank 投递状态的单调序，仅对接收者侧状态有意义
// sent < delivered < read，非法状态返回-1
func (s DeliveryState) Rank() int {
	switch s {
	case DeliveryStateSent:
		return 0
	case DeliveryStateDelivered:
		return 1
	case DeliveryStateRead:
		return 2
	}
	return -1
}

// MessageType 消息类型
type MessageType string

const (
	MessageTypeText            MessageType = "text"
	MessageTypeImage           MessageType = "image"
	MessageTypeVideo           MessageType = "video"
	MessageTypeAudio           MessageType = "audio"
	MessageTypeVoiceNote       MessageType = "voice_note"
	MessageTypeDocument        MessageType = "document"
	MessageTypeLocation        MessageType = "location"
	MessageTypeContact         MessageType = "contact"
	MessageTypeSystem          MessageType = "system"
	MessageTypeMissedVoiceCall MessageType = "missed_voice_call"
	MessageTypeMissedVideoCall MessageType = "missed_video_call"
)

// Valid 校验消息类型取值
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeAudio,
		MessageTypeVoiceNote, MessageTypeDocument, MessageTypeLocation,
		MessageTypeContact, MessageTypeSystem,
		MessageTypeMissedVoiceCall, MessageTypeMissedVideoCall:
		return true
	}
	return false
}

// ConversationType 会话类型
type ConversationType string

const (
	ConversationTypePrivate ConversationType = "private"
	ConversationTypeGroup   ConversationType = "group"
	ConversationTypeChannel ConversationType = "channel"
)

// CallType 通话类型
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// CallStatus 通话状态
type CallStatus string

const (
	CallStatusRinging  CallStatus = "ringing"
	CallStatusActive   CallStatus = "active"
	CallStatusEnded    CallStatus = "ended"
	CallStatusMissed   CallStatus = "missed"
	CallStatusDeclined CallStatus = "declined"
)

// Terminal 判断通话是否处于终态
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusEnded, CallStatusMissed, CallStatusDeclined:
		return true
	}
	return false
}
