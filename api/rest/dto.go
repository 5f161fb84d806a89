package rest

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	ConversationID string      `json:"conversation_id" binding:"required"`
	SenderID       int64       `json:"sender_id" binding:"required"`
	Type           MessageType `json:"type" binding:"required"`
	Content        string      `json:"content"`
	MediaRef       string      `json:"media_ref"`
	ReplyToID      int64       `json:"reply_to_id"`
	ForwardFromID  int64       `json:"forward_from_id"`
	ExpireAt       int64       `json:"expire_at"`
}

// SendMessageResponse 发送消息响应
type SendMessageResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	MessageID int64  `json:"message_id,omitempty"`
	Seq       int64  `json:"seq,omitempty"`
}

// UpdateStatusRequest 更新消息状态请求
type UpdateStatusRequest struct {
	MessageID   int64         `json:"message_id" binding:"required"`
	RecipientID int64         `json:"recipient_id" binding:"required"`
	Status      DeliveryState `json:"status" binding:"required"`
}

// MarkReadRequest 标记会话已读请求
type MarkReadRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	UserID         int64  `json:"user_id" binding:"required"`
	ReadSeq        int64  `json:"read_seq" binding:"required"`
}

// TypingRequest 输入状态信令
type TypingRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	UserID         int64  `json:"user_id" binding:"required"`
}

// InitiateCallRequest 发起通话请求
type InitiateCallRequest struct {
	ConversationID string   `json:"conversation_id" binding:"required"`
	InitiatorID    int64    `json:"initiator_id" binding:"required"`
	Type           CallType `json:"call_type" binding:"required"`
}

// CallActionRequest 通话参与者动作（接听/拒接/挂断/加入）
type CallActionRequest struct {
	CallID int64 `json:"call_id" binding:"required"`
	UserID int64 `json:"user_id" binding:"required"`
	Muted  *bool `json:"muted,omitempty"`
	Video  *bool `json:"video,omitempty"`
}

// PTTRequest 对讲请求（申请/释放/取消共用）
type PTTRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	UserID         int64  `json:"user_id" binding:"required"`
}

// PTTResponse 对讲响应
type PTTResponse struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
}

// ConversationSummary 会话摘要（合并视图中的单个条目）
type ConversationSummary struct {
	ConversationID string           `json:"conversation_id"`
	Type           ConversationType `json:"type"`
	Participants   []int64          `json:"participants,omitempty"`
	LastMessage    *WireMessage     `json:"last_message,omitempty"`
	LastMessageAt  int64            `json:"last_message_at"`
	UnreadCount    int              `json:"unread_count"`
	ReadSeq        int64            `json:"read_seq"`
	Muted          bool             `json:"muted"`
	MutedUntil     int64            `json:"muted_until,omitempty"`
	Archived       bool             `json:"archived"`
	Deleted        bool             `json:"deleted"`
}

// SnapshotResponse 会话快照响应
type SnapshotResponse struct {
	Conversations []*ConversationSummary `json:"conversations"`
	FetchedAt     int64                  `json:"fetched_at"`
}

// HistoryRequest 历史消息查询
type HistoryRequest struct {
	ConversationID string `form:"conversation_id" binding:"required"`
	Page           int    `form:"page"`
	Size           int    `form:"size"`
}

// EditMessageRequest 编辑消息请求，仅发送者可编辑
type EditMessageRequest struct {
	MessageID int64  `json:"message_id" binding:"required"`
	SenderID  int64  `json:"sender_id" binding:"required"`
	Content   string `json:"content" binding:"required"`
}

// DeleteMessageRequest 删除消息请求，软删除
type DeleteMessageRequest struct {
	MessageID int64 `json:"message_id" binding:"required"`
	UserID    int64 `json:"user_id" binding:"required"`
}

// SearchMessagesRequest 历史消息搜索
type SearchMessagesRequest struct {
	Keyword        string `form:"keyword" binding:"required"`
	ConversationID string `form:"conversation_id"`
	Page           int    `form:"page"`
	Size           int    `form:"size"`
}

// SearchMessagesResponse 搜索结果
type SearchMessagesResponse struct {
	Messages []*WireMessage `json:"messages"`
	Total    int64          `json:"total"`
}

// HistoryResponse 历史消息响应
type HistoryResponse struct {
	Messages []*WireMessage `json:"messages"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	Size     int            `json:"size"`
}

// AggregateStatusResponse 发送者可见的聚合投递状态
type AggregateStatusResponse struct {
	MessageID int64         `json:"message_id"`
	Status    DeliveryState `json:"status"`
}

// CreateConversationRequest 创建会话请求
type CreateConversationRequest struct {
	ConversationID string           `json:"conversation_id" binding:"required"`
	Type           ConversationType `json:"type" binding:"required"`
	Participants   []int64          `json:"participants" binding:"required"`
}

// ArchiveRequest 归档/取消归档会话
type ArchiveRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	UserID         int64  `json:"user_id" binding:"required"`
	Archived       bool   `json:"archived"`
}

// MuteRequest 免打扰设置
type MuteRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	UserID         int64  `json:"user_id" binding:"required"`
	Muted          bool   `json:"muted"`
	MutedUntil     int64  `json:"muted_until"`
}

// PresenceStatus 单个用户的在线状态
type PresenceStatus struct {
	UserID   int64 `json:"user_id"`
	Online   bool  `json:"online"`
	LastSeen int64 `json:"last_seen"`
}

// TypingStatusResponse 会话内正在输入的用户
type TypingStatusResponse struct {
	ConversationID string  `json:"conversation_id"`
	UserIDs        []int64 `json:"user_ids"`
}

// CallResponse 通话操作响应
type CallResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Call    *CallEvent `json:"call,omitempty"`
}

// DirectoryImportRow 通讯录批量导入行（类型化schema，逐行校验）
type DirectoryImportRow struct {
	ServiceNumber string `json:"service_number" binding:"required"`
	Name          string `json:"name" binding:"required"`
	Rank          string `json:"rank"`
	Unit          string `json:"unit"`
	Phone         string `json:"phone"`
}

// DirectoryImportResult 导入结果，逐行成功/失败
type DirectoryImportResult struct {
	Imported int                    `json:"imported"`
	Failed   []DirectoryImportFail  `json:"failed,omitempty"`
}

// DirectoryImportFail 单行导入失败详情
type DirectoryImportFail struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}
