package model

// Session 对讲发言会话，同一会话同一时刻至多一个发言者
type Session struct {
	ConversationID string `json:"conversation_id"`
	SpeakerID      int64  `json:"speaker_id"`
	StartedAt      int64  `json:"started_at"` // Unix毫秒
}
