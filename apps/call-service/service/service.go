package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/call-service/dao"
	"orgtalk/apps/call-service/model"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/snowflake"
)

var (
	// ErrCallNotFound 通话不存在
	ErrCallNotFound = errors.New("通话不存在")
	// ErrInvalidTransition 状态迁移不合法（通话已结束或已被其他操作抢先）
	ErrInvalidTransition = errors.New("通话状态不允许该操作")
)

// Publisher 事件发布接口
type Publisher interface {
	SendMessage(topic string, key, value []byte) error
}

// Service 通话服务
type Service struct {
	dao         dao.CallDAO
	producer    Publisher
	logger      logger.Logger
	ringTimeout time.Duration
	now         func() time.Time

	mu     sync.Mutex
	timers map[int64]*time.Timer // callID -> 振铃超时定时器
}

// NewService 创建服务实例
func NewService(callDAO dao.CallDAO, producer Publisher, log logger.Logger, ringTimeout time.Duration) *Service {
	return &Service{
		dao:         callDAO,
		producer:    producer,
		logger:      log,
		ringTimeout: ringTimeout,
		now:         time.Now,
		timers:      make(map[int64]*time.Timer),
	}
}

// WithClock 注入时钟，测试用
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// InitiateCall 发起通话，初始状态ringing，超时未接听转missed
func (s *Service) InitiateCall(ctx context.Context, req *rest.InitiateCallRequest, participants []int64) (*rest.CallResponse, error) {
	now := s.now()
	call := &model.Call{
		ID:             snowflake.GenerateID(),
		ConversationID: req.ConversationID,
		InitiatorID:    req.InitiatorID,
		Type:           req.Type,
		Status:         rest.CallStatusRinging,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.dao.CreateCall(ctx, call, participants); err != nil {
		return nil, err
	}

	// 振铃超时定时器，清理器兜底处理进程重启丢失的定时器
	s.mu.Lock()
	s.timers[call.ID] = time.AfterFunc(s.ringTimeout, func() {
		if _, err := s.TimeoutRing(context.Background(), call.ID); err != nil {
			s.logger.Error(context.Background(), "振铃超时处理失败",
				logger.F("call_id", call.ID),
				logger.F("error", err.Error()))
		}
	})
	s.mu.Unlock()

	s.publishCall(ctx, rest.EventTypeCallInitiated, call)
	return &rest.CallResponse{Success: true, Call: call.ToEvent()}, nil
}

// Answer 接听通话，ringing -> active
func (s *Service) Answer(ctx context.Context, req *rest.CallActionRequest) (*rest.CallResponse, error) {
	now := s.now()
	ok, err := s.dao.TransitionStatus(ctx, req.CallID, rest.CallStatusRinging, rest.CallStatusActive, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionFailure(ctx, req.CallID)
	}
	s.cancelTimer(req.CallID)

	if err := s.dao.MarkJoined(ctx, req.CallID, req.UserID, now); err != nil {
		s.logger.Warn(ctx, "记录参与者加入失败", logger.F("error", err.Error()))
	}

	return s.publishTransition(ctx, req.CallID, rest.EventTypeCallStatusChanged)
}

// Decline 拒接通话，ringing -> declined
func (s *Service) Decline(ctx context.Context, req *rest.CallActionRequest) (*rest.CallResponse, error) {
	ok, err := s.dao.TransitionStatus(ctx, req.CallID, rest.CallStatusRinging, rest.CallStatusDeclined, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionFailure(ctx, req.CallID)
	}
	s.cancelTimer(req.CallID)

	return s.publishTransition(ctx, req.CallID, rest.EventTypeCallStatusChanged)
}

// End 结束通话，active -> ended
func (s *Service) End(ctx context.Context, req *rest.CallActionRequest) (*rest.CallResponse, error) {
	now := s.now()
	ok, err := s.dao.TransitionStatus(ctx, req.CallID, rest.CallStatusActive, rest.CallStatusEnded, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionFailure(ctx, req.CallID)
	}

	if err := s.dao.MarkLeft(ctx, req.CallID, req.UserID, now); err != nil {
		s.logger.Warn(ctx, "记录参与者离开失败", logger.F("error", err.Error()))
	}

	return s.publishTransition(ctx, req.CallID, rest.EventTypeCallEnded)
}

// TimeoutRing 振铃超时转未接，迁移成功时向会话写入未接来电系统消息
// 守卫迁移保证定时器与清理器并发触发也只产生一条消息
func (s *Service) TimeoutRing(ctx context.Context, callID int64) (bool, error) {
	ok, err := s.dao.TransitionStatus(ctx, callID, rest.CallStatusRinging, rest.CallStatusMissed, s.now())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	s.cancelTimer(callID)

	call, err := s.dao.GetCall(ctx, callID)
	if err != nil || call == nil {
		return true, err
	}

	s.publishCall(ctx, rest.EventTypeCallStatusChanged, call)
	s.publishMissedMessage(ctx, call)
	return true, nil
}

// ForceEnd 强制结束超过最大存活时间的通话，清理器调用
func (s *Service) ForceEnd(ctx context.Context, callID int64) (bool, error) {
	ok, err := s.dao.TransitionStatus(ctx, callID, rest.CallStatusActive, rest.CallStatusEnded, s.now())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	call, err := s.dao.GetCall(ctx, callID)
	if err == nil && call != nil {
		s.publishCall(ctx, rest.EventTypeCallEnded, call)
	}
	return true, err
}

// UpdateParticipant 更新参与者静音/视频开关
func (s *Service) UpdateParticipant(ctx context.Context, req *rest.CallActionRequest) error {
	call, err := s.dao.GetCall(ctx, req.CallID)
	if err != nil {
		return err
	}
	if call == nil {
		return ErrCallNotFound
	}
	if call.Status.Terminal() {
		return ErrInvalidTransition
	}
	return s.dao.UpdateParticipantFlags(ctx, req.CallID, req.UserID, req.Muted, req.Video)
}

// GetCall 查询通话详情
func (s *Service) GetCall(ctx context.Context, callID int64) (*rest.CallResponse, error) {
	call, err := s.dao.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, ErrCallNotFound
	}
	return &rest.CallResponse{Success: true, Call: call.ToEvent()}, nil
}

// transitionFailure 区分通话不存在和状态不允许
func (s *Service) transitionFailure(ctx context.Context, callID int64) error {
	call, err := s.dao.GetCall(ctx, callID)
	if err != nil {
		return err
	}
	if call == nil {
		return ErrCallNotFound
	}
	return ErrInvalidTransition
}

func (s *Service) cancelTimer(callID int64) {
	s.mu.Lock()
	if timer, ok := s.timers[callID]; ok {
		timer.Stop()
		delete(s.timers, callID)
	}
	s.mu.Unlock()
}

func (s *Service) publishTransition(ctx context.Context, callID int64, eventType string) (*rest.CallResponse, error) {
	call, err := s.dao.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, ErrCallNotFound
	}
	s.publishCall(ctx, eventType, call)
	return &rest.CallResponse{Success: true, Call: call.ToEvent()}, nil
}

// publishCall 发布通话信令事件
func (s *Service) publishCall(ctx context.Context, eventType string, call *model.Call) {
	event := &rest.ConversationEvent{
		Type:           eventType,
		ConversationID: call.ConversationID,
		Seq:            snowflake.GenerateID(),
		Timestamp:      s.now().UnixMilli(),
		Call:           call.ToEvent(),
	}
	s.publish(ctx, rest.TopicSignalEvents, call.ConversationID, event)
}

// publishMissedMessage 向会话事件流写入未接来电系统消息
func (s *Service) publishMissedMessage(ctx context.Context, call *model.Call) {
	now := s.now().UnixMilli()
	event := &rest.ConversationEvent{
		Type:           rest.EventTypeMessageCreated,
		ConversationID: call.ConversationID,
		Seq:            snowflake.GenerateID(),
		Timestamp:      now,
		Message: &rest.WireMessage{
			MessageID:      snowflake.GenerateID(),
			ConversationID: call.ConversationID,
			SenderID:       call.InitiatorID,
			Type:           model.MissedMessageType(call.Type),
			Timestamp:      now,
		},
	}
	s.publish(ctx, rest.TopicConversationEvents, call.ConversationID, event)
}

func (s *Service) publish(ctx context.Context, topic, key string, event *rest.ConversationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error(ctx, "编码通话事件失败", logger.F("error", err.Error()))
		return
	}
	if err := s.producer.SendMessage(topic, []byte(key), payload); err != nil {
		s.logger.Error(ctx, "发布通话事件失败",
			logger.F("type", event.Type),
			logger.F("error", err.Error()))
	}
}
