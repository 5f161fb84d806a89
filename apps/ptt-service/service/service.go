package service

import (
	"context"
	"encoding/json"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/ptt-service/dao"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/snowflake"
)

// ReasonChannelBusy 发言权被他人持有时的拒绝原因
const ReasonChannelBusy = "channel busy"

// ReasonNotSpeaker 非持有者操作时的拒绝原因
const ReasonNotSpeaker = "not the current speaker"

// Publisher 事件发布接口
type Publisher interface {
	SendMessage(topic string, key, value []byte) error
}

// Service 对讲发言权仲裁服务
// 同一会话同一时刻只有一个发言者，短于最小时长的发言按取消处理
type Service struct {
	store        dao.SessionStore
	producer     Publisher
	logger       logger.Logger
	minUtterance time.Duration
	liveness     time.Duration
	now          func() time.Time
}

// NewService 创建服务实例
func NewService(store dao.SessionStore, producer Publisher, log logger.Logger,
	minUtterance, liveness time.Duration) *Service {
	return &Service{
		store:        store,
		producer:     producer,
		logger:       log,
		minUtterance: minUtterance,
		liveness:     liveness,
		now:          time.Now,
	}
}

// WithClock 注入时钟，测试用
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Grant 申请发言权
// 持有者重复申请视为保活续期；他人持有时拒绝，理由channel busy
func (s *Service) Grant(ctx context.Context, req *rest.PTTRequest) (*rest.PTTResponse, error) {
	startedAt := s.now().UnixMilli()
	acquired, current, err := s.store.Acquire(ctx, req.ConversationID, req.UserID, startedAt, s.liveness)
	if err != nil {
		return nil, err
	}

	if acquired {
		s.publishPTT(ctx, rest.EventTypePTTStarted, req.ConversationID, &rest.PTTEvent{
			SpeakerID: req.UserID,
			StartedAt: startedAt,
		})
		return &rest.PTTResponse{Granted: true}, nil
	}

	if current != nil && current.SpeakerID == req.UserID {
		// 持有者续报，仅续期TTL不重复广播
		if _, err := s.store.Refresh(ctx, req.ConversationID, req.UserID, s.liveness); err != nil {
			return nil, err
		}
		return &rest.PTTResponse{Granted: true}, nil
	}

	return &rest.PTTResponse{Granted: false, Reason: ReasonChannelBusy}, nil
}

// Release 释放发言权
// 发言时长达到最小时长广播ptt_ended，否则按取消广播ptt_cancelled
// 非持有者的释放是no-op
func (s *Service) Release(ctx context.Context, req *rest.PTTRequest) (*rest.PTTResponse, error) {
	session, err := s.store.Release(ctx, req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return &rest.PTTResponse{Granted: false, Reason: ReasonNotSpeaker}, nil
	}

	duration := s.now().UnixMilli() - session.StartedAt
	if duration >= s.minUtterance.Milliseconds() {
		s.publishPTT(ctx, rest.EventTypePTTEnded, req.ConversationID, &rest.PTTEvent{
			SpeakerID:  session.SpeakerID,
			StartedAt:  session.StartedAt,
			DurationMs: duration,
		})
	} else {
		s.publishPTT(ctx, rest.EventTypePTTCancelled, req.ConversationID, &rest.PTTEvent{
			SpeakerID: session.SpeakerID,
			StartedAt: session.StartedAt,
		})
	}
	return &rest.PTTResponse{Granted: true}, nil
}

// Cancel 显式取消发言，时长不计，非持有者的取消是no-op
func (s *Service) Cancel(ctx context.Context, req *rest.PTTRequest) (*rest.PTTResponse, error) {
	session, err := s.store.Release(ctx, req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return &rest.PTTResponse{Granted: false, Reason: ReasonNotSpeaker}, nil
	}

	s.publishPTT(ctx, rest.EventTypePTTCancelled, req.ConversationID, &rest.PTTEvent{
		SpeakerID: session.SpeakerID,
		StartedAt: session.StartedAt,
	})
	return &rest.PTTResponse{Granted: true}, nil
}

// CurrentSpeaker 查询会话当前发言者，无人发言时Speaker为nil
func (s *Service) CurrentSpeaker(ctx context.Context, conversationID string) (*rest.PTTEvent, error) {
	session, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	return &rest.PTTEvent{SpeakerID: session.SpeakerID, StartedAt: session.StartedAt}, nil
}

func (s *Service) publishPTT(ctx context.Context, eventType, conversationID string, ptt *rest.PTTEvent) {
	event := &rest.ConversationEvent{
		Type:           eventType,
		ConversationID: conversationID,
		Seq:            snowflake.GenerateID(),
		Timestamp:      s.now().UnixMilli(),
		PTT:            ptt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error(ctx, "编码对讲事件失败", logger.F("error", err.Error()))
		return
	}
	if err := s.producer.SendMessage(rest.TopicSignalEvents, []byte(conversationID), payload); err != nil {
		s.logger.Error(ctx, "发布对讲事件失败",
			logger.F("type", eventType),
			logger.F("error", err.Error()))
	}
}
