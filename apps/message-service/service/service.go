package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/message-service/dao"
	"orgtalk/apps/message-service/model"
	"orgtalk/pkg/kafka"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/snowflake"
)

// Service 消息服务，负责消息与投递状态的持久化和事件发布
type Service struct {
	dao      dao.MessageDAO
	producer *kafka.Producer
	logger   logger.Logger
}

// NewService 创建消息服务实例
func NewService(messageDAO dao.MessageDAO, producer *kafka.Producer, log logger.Logger) *Service {
	return &Service{
		dao:      messageDAO,
		producer: producer,
		logger:   log,
	}
}

// SendMessage 接收短连接发送的消息，持久化并发布message_created事件
func (s *Service) SendMessage(ctx context.Context, req *rest.SendMessageRequest) (*rest.WireMessage, int64, error) {
	if !req.Type.Valid() {
		return nil, 0, fmt.Errorf("未知的消息类型: %s", req.Type)
	}
	if req.Content == "" && req.MediaRef == "" {
		return nil, 0, fmt.Errorf("消息内容不能为空")
	}

	now := time.Now()
	msg := &model.Message{
		MessageID:      snowflake.GenerateID(),
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		Type:           string(req.Type),
		Content:        req.Content,
		MediaRef:       req.MediaRef,
		ReplyToID:      req.ReplyToID,
		Timestamp:      now.UnixMilli(),
		ExpireAt:       req.ExpireAt,
	}
	if req.ForwardFromID > 0 {
		msg.Forwarded = true
		msg.ForwardFromID = req.ForwardFromID
		msg.ForwardHops = 1
	}

	if err := s.dao.SaveMessage(ctx, msg); err != nil {
		return nil, 0, err
	}

	seq := snowflake.GenerateID()
	s.publishEvent(ctx, &rest.ConversationEvent{
		Type:           rest.EventTypeMessageCreated,
		ConversationID: msg.ConversationID,
		Seq:            seq,
		Timestamp:      msg.Timestamp,
		Message:        msg.ToWire(),
	})

	return msg.ToWire(), seq, nil
}

// SaveInbound 持久化网关上行的消息（MessageID已由网关分配）
func (s *Service) SaveInbound(ctx context.Context, up *rest.UplinkMessage) error {
	if up.MessageID == 0 {
		return fmt.Errorf("MessageID不能为0")
	}
	if !up.Type.Valid() {
		return fmt.Errorf("未知的消息类型: %s", up.Type)
	}

	msg := &model.Message{
		MessageID:      up.MessageID,
		ConversationID: up.ConversationID,
		SenderID:       up.SenderID,
		Type:           string(up.Type),
		Content:        up.Content,
		MediaRef:       up.MediaRef,
		ReplyToID:      up.ReplyToID,
		Timestamp:      up.Timestamp,
		ExpireAt:       up.ExpireAt,
	}
	if up.ForwardFromID > 0 {
		msg.Forwarded = true
		msg.ForwardFromID = up.ForwardFromID
		msg.ForwardHops = 1
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	if err := s.dao.SaveMessage(ctx, msg); err != nil {
		return err
	}

	s.publishEvent(ctx, &rest.ConversationEvent{
		Type:           rest.EventTypeMessageCreated,
		ConversationID: msg.ConversationID,
		Seq:            snowflake.GenerateID(),
		Timestamp:      msg.Timestamp,
		Message:        msg.ToWire(),
	})
	return nil
}

// UpdateStatus 推进单接收者的投递状态并发布变更事件
// 状态只前进不后退，逆向或重复上报幂等吞掉
func (s *Service) UpdateStatus(ctx context.Context, req *rest.UpdateStatusRequest) error {
	if req.Status.Rank() < 0 {
		return fmt.Errorf("非法的投递状态: %s", req.Status)
	}

	at := time.Now().UnixMilli()
	if err := s.dao.AdvanceStatus(ctx, req.MessageID, req.RecipientID, req.Status, at); err != nil {
		return err
	}

	msg, err := s.dao.GetMessage(ctx, req.MessageID)
	if err != nil {
		return err
	}

	s.publishEvent(ctx, &rest.ConversationEvent{
		Type:           rest.EventTypeMessageStatusUpdated,
		ConversationID: msg.ConversationID,
		Seq:            snowflake.GenerateID(),
		Timestamp:      at,
		Status: &rest.StatusUpdate{
			MessageID:   req.MessageID,
			RecipientID: req.RecipientID,
			Status:      req.Status,
			At:          at,
		},
	})
	return nil
}

// GetAggregateStatus 查询发送者可见的聚合投递状态
func (s *Service) GetAggregateStatus(ctx context.Context, messageID int64, recipients []int64) (rest.DeliveryState, error) {
	msg, err := s.dao.GetMessage(ctx, messageID)
	if err != nil {
		return "", err
	}
	statuses, err := s.dao.ListStatuses(ctx, messageID)
	if err != nil {
		return "", err
	}
	return AggregateStatus(statuses, recipients, msg.SenderID), nil
}

// GetHistory 分页查询历史消息
func (s *Service) GetHistory(ctx context.Context, conversationID string, page, size int) ([]*rest.WireMessage, int64, error) {
	messages, total, err := s.dao.ListHistory(ctx, conversationID, page, size)
	if err != nil {
		return nil, 0, err
	}

	wire := make([]*rest.WireMessage, 0, len(messages))
	for _, msg := range messages {
		wire = append(wire, msg.ToWire())
	}
	return wire, total, nil
}

// EditMessage 编辑消息并发布message_edited事件
func (s *Service) EditMessage(ctx context.Context, req *rest.EditMessageRequest) error {
	if err := s.dao.MarkEdited(ctx, req.MessageID, req.SenderID, req.Content); err != nil {
		return err
	}

	msg, err := s.dao.GetMessage(ctx, req.MessageID)
	if err != nil {
		return err
	}
	s.publishEvent(ctx, &rest.ConversationEvent{
		Type:           rest.EventTypeMessageEdited,
		ConversationID: msg.ConversationID,
		Seq:            snowflake.GenerateID(),
		Timestamp:      time.Now().UnixMilli(),
		Message:        msg.ToWire(),
	})
	return nil
}

// DeleteMessage 软删除消息并发布message_deleted事件
// 墓碑保留，回复引用仍可表达"原消息已删除"
func (s *Service) DeleteMessage(ctx context.Context, req *rest.DeleteMessageRequest) error {
	if err := s.dao.MarkDeleted(ctx, req.MessageID, req.UserID); err != nil {
		return err
	}

	msg, err := s.dao.GetMessage(ctx, req.MessageID)
	if err != nil {
		return err
	}
	s.publishEvent(ctx, &rest.ConversationEvent{
		Type:           rest.EventTypeMessageDeleted,
		ConversationID: msg.ConversationID,
		Seq:            snowflake.GenerateID(),
		Timestamp:      time.Now().UnixMilli(),
		Message:        msg.ToWire(),
	})
	return nil
}

// publishEvent 发布会话事件，按会话ID分区保序
func (s *Service) publishEvent(ctx context.Context, event *rest.ConversationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error(ctx, "编码会话事件失败", logger.F("error", err.Error()))
		return
	}
	if err := s.producer.SendMessage(rest.TopicConversationEvents, []byte(event.ConversationID), payload); err != nil {
		s.logger.Error(ctx, "发布会话事件失败",
			logger.F("type", event.Type),
			logger.F("conversation_id", event.ConversationID),
			logger.F("error", err.Error()))
	}
}
