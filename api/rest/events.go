package rest

// 事件类型常量，推送事件统一走 conversation_events / signal_events 两个topic
const (
	EventTypeMessageCreated       = "message_created"
	EventTypeMessageEdited        = "message_edited"
	EventTypeMessageDeleted       = "message_deleted"
	EventTypeMessageStatusUpdated = "message_status_updated"
	EventTypeConversationRead     = "conversation_read"
	EventTypeConversationArchived = "conversation_archived"
	EventTypeConversationMuted    = "conversation_muted"

	EventTypeTypingStarted   = "typing_started"
	EventTypeTypingEnded     = "typing_ended"
	EventTypePresenceChanged = "presence_changed"

	EventTypeCallInitiated     = "call_initiated"
	EventTypeCallStatusChanged = "call_status_changed"
	EventTypeCallEnded         = "call_ended"

	EventTypePTTStarted   = "ptt_started"
	EventTypePTTEnded     = "ptt_ended"
	EventTypePTTCancelled = "ptt_cancelled"
)

// Kafka topic 常量
const (
	TopicConversationEvents = "conversation_events"
	TopicSignalEvents       = "signal_events"
	TopicUplinkMessages     = "uplink_messages"
	TopicDownlinkPrefix     = "downlink_" // 每个网关实例一个下行topic
)

// UplinkMessage 网关上行的客户端消息
// MessageID由网关snowflake预分配，存储端靠唯一索引做幂等
type UplinkMessage struct {
	MessageID      int64       `json:"message_id"`
	AckID          string      `json:"ack_id"` // 客户端本地ID，回执时原样返回
	ConversationID string      `json:"conversation_id"`
	SenderID       int64       `json:"sender_id"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	MediaRef       string      `json:"media_ref,omitempty"`
	ReplyToID      int64       `json:"reply_to_id,omitempty"`
	ForwardFromID  int64       `json:"forward_from_id,omitempty"`
	Timestamp      int64       `json:"timestamp"`
	ExpireAt       int64       `json:"expire_at,omitempty"`
}

// DownlinkMessage 按用户定向下发的事件，发到持有该用户连接的网关实例topic
type DownlinkMessage struct {
	UserID int64              `json:"user_id"`
	Event  *ConversationEvent `json:"event"`
}

// ConversationEvent 会话事件信封
// 至少一次投递，消费端按 Seq/时间戳做幂等合并；未识别的Type降级为no-op
type ConversationEvent struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Seq            int64          `json:"seq"`       // 事件序号，snowflake生成
	Timestamp      int64          `json:"timestamp"` // Unix毫秒
	Message        *WireMessage   `json:"message,omitempty"`
	Status         *StatusUpdate  `json:"status,omitempty"`
	Read           *ReadMarker    `json:"read,omitempty"`
	Archived       *ArchivedFlag  `json:"archived,omitempty"`
	Muted          *MutedFlag     `json:"muted,omitempty"`
	Call           *CallEvent     `json:"call,omitempty"`
	Presence       *PresenceEvent `json:"presence,omitempty"`
	Typing         *TypingEvent   `json:"typing,omitempty"`
	PTT            *PTTEvent      `json:"ptt,omitempty"`
}

// WireMessage 推送流中的消息体
type WireMessage struct {
	MessageID      int64       `json:"message_id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       int64       `json:"sender_id"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	MediaRef       string      `json:"media_ref,omitempty"`
	ReplyToID      int64       `json:"reply_to_id,omitempty"` // 仅引用，不内嵌原文
	Forwarded      bool        `json:"forwarded,omitempty"`
	ForwardFromID  int64       `json:"forward_from_id,omitempty"`
	ForwardHops    int32       `json:"forward_hops,omitempty"`
	Edited         bool        `json:"edited,omitempty"`
	Deleted        bool        `json:"deleted,omitempty"`
	Timestamp      int64       `json:"timestamp"`
	ExpireAt       int64       `json:"expire_at,omitempty"`
}

// StatusUpdate 单接收者的消息状态变更
type StatusUpdate struct {
	MessageID   int64         `json:"message_id"`
	RecipientID int64         `json:"recipient_id"`
	Status      DeliveryState `json:"status"`
	At          int64         `json:"at"` // Unix毫秒
}

// ReadMarker 显式已读标记，Seq之前的消息计入已读
type ReadMarker struct {
	UserID  int64 `json:"user_id"`
	ReadSeq int64 `json:"read_seq"`
}

// ArchivedFlag 归档标记
type ArchivedFlag struct {
	UserID   int64 `json:"user_id"`
	Archived bool  `json:"archived"`
}

// MutedFlag 免打扰标记
type MutedFlag struct {
	UserID     int64 `json:"user_id"`
	Muted      bool  `json:"muted"`
	MutedUntil int64 `json:"muted_until,omitempty"`
}

// CallEvent 通话事件
type CallEvent struct {
	CallID      int64      `json:"call_id"`
	InitiatorID int64      `json:"initiator_id"`
	Type        CallType   `json:"call_type"`
	Status      CallStatus `json:"status"`
	StartedAt   int64      `json:"started_at,omitempty"`
	EndedAt     int64      `json:"ended_at,omitempty"`
}

// PresenceEvent 在线状态事件
type PresenceEvent struct {
	UserID   int64 `json:"user_id"`
	Online   bool  `json:"online"`
	LastSeen int64 `json:"last_seen"` // Unix毫秒，只允许单调前进
}

// TypingEvent 输入状态事件
type TypingEvent struct {
	UserID int64 `json:"user_id"`
}

// PTTEvent 对讲事件
type PTTEvent struct {
	SpeakerID  int64 `json:"speaker_id"`
	StartedAt  int64 `json:"started_at"`
	DurationMs int64 `json:"duration_ms,omitempty"` // 仅ptt_ended携带
}
