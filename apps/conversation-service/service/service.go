package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/conversation-service/dao"
	"orgtalk/apps/conversation-service/model"
	"orgtalk/pkg/kafka"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/sessionlocator"
	"orgtalk/pkg/snowflake"
)

// Service 会话服务，持有合并镜像并串行应用增量事件
// 同时是下行推送的扇出点：镜像行记录了会话成员，按成员查路由表定向下发
type Service struct {
	dao      dao.ConversationDAO
	producer *kafka.Producer
	routes   *sessionlocator.RouteTable
	logger   logger.Logger
	queue    chan *rest.ConversationEvent
}

// NewService 创建会话服务实例，routes为nil时不做下行扇出
func NewService(conversationDAO dao.ConversationDAO, producer *kafka.Producer, routes *sessionlocator.RouteTable, log logger.Logger) *Service {
	return &Service{
		dao:      conversationDAO,
		producer: producer,
		routes:   routes,
		logger:   log,
		queue:    make(chan *rest.ConversationEvent, 1024),
	}
}

// StartQueue 启动单序事件队列
// 所有合并走同一个goroutine，合并操作天然免锁
func (s *Service) StartQueue(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-s.queue:
				if err := s.handleEvent(ctx, event); err != nil {
					s.logger.Error(ctx, "应用会话事件失败",
						logger.F("type", event.Type),
						logger.F("conversation_id", event.ConversationID),
						logger.F("error", err.Error()))
				}
			}
		}
	}()
}

// Enqueue 投入事件队列，队列满时丢弃并记日志（事件会随下次快照补齐）
func (s *Service) Enqueue(event *rest.ConversationEvent) {
	select {
	case s.queue <- event:
	default:
		s.logger.Warn(context.Background(), "事件队列已满，丢弃事件",
			logger.F("type", event.Type),
			logger.F("conversation_id", event.ConversationID))
	}
}

// handleEvent 把事件应用到会话内每个参与者的镜像行，并向在线成员定向下发
func (s *Service) handleEvent(ctx context.Context, event *rest.ConversationEvent) error {
	if event.ConversationID == "" {
		// 不挂在会话上的事件（如presence_changed）没有扇出目标
		return nil
	}
	rows, err := s.dao.ListByConversation(ctx, event.ConversationID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		// 未创建的会话只记日志，快照到达时补齐
		s.logger.Warn(ctx, "事件指向未知会话", logger.F("conversation_id", event.ConversationID))
		return nil
	}

	for _, row := range rows {
		if isMirrorEvent(event.Type) {
			prevSeq := row.AppliedSeq
			changed := ApplyEvent(row, event, row.UserID)
			// AppliedSeq前进了也要落盘，否则重启后重放判定失效
			if changed || row.AppliedSeq != prevSeq {
				if err := s.dao.Upsert(ctx, row); err != nil {
					return err
				}
			}
		}
		s.pushDownlink(ctx, row.UserID, event)
	}
	return nil
}

// isMirrorEvent 会话镜像关心的事件类型，信令类事件只下发不落盘
func isMirrorEvent(eventType string) bool {
	switch eventType {
	case rest.EventTypeMessageCreated, rest.EventTypeMessageEdited, rest.EventTypeMessageDeleted,
		rest.EventTypeMessageStatusUpdated, rest.EventTypeConversationRead,
		rest.EventTypeConversationArchived, rest.EventTypeConversationMuted:
		return true
	}
	return false
}

// pushDownlink 查路由表把事件发到持有该用户连接的网关实例topic，未在线跳过
func (s *Service) pushDownlink(ctx context.Context, userID int64, event *rest.ConversationEvent) {
	if s.routes == nil {
		return
	}
	instanceID, err := s.routes.LookupUser(ctx, userID)
	if err != nil {
		s.logger.Warn(ctx, "查询用户路由失败",
			logger.F("user_id", userID),
			logger.F("error", err.Error()))
		return
	}
	if instanceID == "" {
		return
	}

	payload, err := json.Marshal(&rest.DownlinkMessage{UserID: userID, Event: event})
	if err != nil {
		s.logger.Error(ctx, "编码下行消息失败", logger.F("error", err.Error()))
		return
	}
	topic := rest.TopicDownlinkPrefix + instanceID
	if err := s.producer.SendMessage(topic, []byte(fmt.Sprintf("%d", userID)), payload); err != nil {
		s.logger.Error(ctx, "发布下行消息失败",
			logger.F("topic", topic),
			logger.F("error", err.Error()))
	}
}

// CreateConversation 建立会话，为每个参与者生成镜像行
func (s *Service) CreateConversation(ctx context.Context, req *rest.CreateConversationRequest) error {
	if len(req.Participants) == 0 {
		return fmt.Errorf("参与者不能为空")
	}
	for _, userID := range req.Participants {
		existing, err := s.dao.Get(ctx, userID, req.ConversationID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		conv := &model.Conversation{
			ConversationID: req.ConversationID,
			UserID:         userID,
			Type:           string(req.Type),
			Participants:   req.Participants,
		}
		if err := s.dao.Upsert(ctx, conv); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot 返回用户的合并会话列表
// includeArchived为false时过滤归档与已删除（默认视图）
func (s *Service) Snapshot(ctx context.Context, userID int64, includeArchived bool) (*rest.SnapshotResponse, error) {
	rows, err := s.dao.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	merged := Reconcile(nil, rows, nil, userID)
	if !includeArchived {
		merged = DefaultView(merged)
	}

	summaries := make([]*rest.ConversationSummary, 0, len(merged))
	for _, conv := range merged {
		summaries = append(summaries, conv.ToSummary())
	}
	return &rest.SnapshotResponse{
		Conversations: summaries,
		FetchedAt:     time.Now().UnixMilli(),
	}, nil
}

// MarkRead 显式已读：权威重置未读数并发布conversation_read事件
func (s *Service) MarkRead(ctx context.Context, req *rest.MarkReadRequest) error {
	conv, err := s.dao.Get(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("会话不存在: %s", req.ConversationID)
	}

	event := &rest.ConversationEvent{
		Type:           rest.EventTypeConversationRead,
		ConversationID: req.ConversationID,
		Seq:            snowflake.GenerateID(),
		Timestamp:      time.Now().UnixMilli(),
		Read: &rest.ReadMarker{
			UserID:  req.UserID,
			ReadSeq: req.ReadSeq,
		},
	}
	if ApplyEvent(conv, event, req.UserID) {
		if err := s.dao.Upsert(ctx, conv); err != nil {
			return err
		}
	}
	s.publishEvent(ctx, event)
	return nil
}

// Archive 归档/取消归档
func (s *Service) Archive(ctx context.Context, req *rest.ArchiveRequest) error {
	conv, err := s.dao.Get(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("会话不存在: %s", req.ConversationID)
	}

	event := &rest.ConversationEvent{
		Type:           rest.EventTypeConversationArchived,
		ConversationID: req.ConversationID,
		Seq:            snowflake.GenerateID(),
		Timestamp:      time.Now().UnixMilli(),
		Archived: &rest.ArchivedFlag{
			UserID:   req.UserID,
			Archived: req.Archived,
		},
	}
	if ApplyEvent(conv, event, req.UserID) {
		if err := s.dao.Upsert(ctx, conv); err != nil {
			return err
		}
	}
	s.publishEvent(ctx, event)
	return nil
}

// Mute 免打扰设置
func (s *Service) Mute(ctx context.Context, req *rest.MuteRequest) error {
	conv, err := s.dao.Get(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("会话不存在: %s", req.ConversationID)
	}

	event := &rest.ConversationEvent{
		Type:           rest.EventTypeConversationMuted,
		ConversationID: req.ConversationID,
		Seq:            snowflake.GenerateID(),
		Timestamp:      time.Now().UnixMilli(),
		Muted: &rest.MutedFlag{
			UserID:     req.UserID,
			Muted:      req.Muted,
			MutedUntil: req.MutedUntil,
		},
	}
	if ApplyEvent(conv, event, req.UserID) {
		if err := s.dao.Upsert(ctx, conv); err != nil {
			return err
		}
	}
	s.publishEvent(ctx, event)
	return nil
}

// publishEvent 发布会话事件供网关下发和其他服务消费
func (s *Service) publishEvent(ctx context.Context, event *rest.ConversationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error(ctx, "编码会话事件失败", logger.F("error", err.Error()))
		return
	}
	if err := s.producer.SendMessage(rest.TopicConversationEvents, []byte(event.ConversationID), payload); err != nil {
		s.logger.Error(ctx, "发布会话事件失败",
			logger.F("type", event.Type),
			logger.F("error", err.Error()))
	}
}
