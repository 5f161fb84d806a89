package model

import (
	"orgtalk/api/rest"
)

// 上行帧操作类型
const (
	OpMessage   = "message"   // 发送消息
	OpHeartbeat = "heartbeat" // 连接保活
)

// 下行帧操作类型
const (
	OpAck   = "ack"   // 消息入队确认，携带服务端分配的消息ID
	OpPong  = "pong"  // 心跳响应
	OpEvent = "event" // 服务端推送的事件
	OpError = "error" // 上行帧处理失败
)

// ClientFrame 客户端上行帧
type ClientFrame struct {
	Op      string              `json:"op"`
	Message *rest.UplinkMessage `json:"message,omitempty"`
}

// ServerFrame 服务端下行帧
type ServerFrame struct {
	Op        string                  `json:"op"`
	AckID     string                  `json:"ack_id,omitempty"`
	MessageID int64                   `json:"message_id,omitempty"`
	Reason    string                  `json:"reason,omitempty"`
	Timestamp int64                   `json:"timestamp"`
	Event     *rest.ConversationEvent `json:"event,omitempty"`
}
