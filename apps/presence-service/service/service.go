package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orgtalk/api/rest"
	"orgtalk/pkg/kafka"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/redis"
	"orgtalk/pkg/snowflake"
)

// redis镜像键，跨网关查询用，TTL与内存窗口一致
const (
	typingKeyFmt   = "typing:%s:%d"    // typing:<conversation_id>:<user_id>
	presenceKeyFmt = "presence:%d"     // presence:<user_id>
	presenceTTL    = 5 * time.Minute   // 在线镜像保留时长
)

// Service 在线与输入状态服务
type Service struct {
	tracker  *Tracker
	redis    *redis.RedisClient
	producer *kafka.Producer
	logger   logger.Logger
	window   time.Duration
}

// NewService 创建服务实例
func NewService(tracker *Tracker, redisClient *redis.RedisClient, producer *kafka.Producer, log logger.Logger, window time.Duration) *Service {
	return &Service{
		tracker:  tracker,
		redis:    redisClient,
		producer: producer,
		logger:   log,
		window:   window,
	}
}

// StartSweeper 周期清理过期输入条目并广播typing_ended
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, entry := range s.tracker.Sweep() {
					s.publishTyping(ctx, rest.EventTypeTypingEnded, entry.ConversationID, entry.UserID)
				}
			}
		}
	}()
}

// TypingStart 开始/续期输入状态
func (s *Service) TypingStart(ctx context.Context, req *rest.TypingRequest) error {
	s.tracker.TypingStart(req.ConversationID, req.UserID)

	// redis镜像带TTL，窗口到期自动消失
	key := fmt.Sprintf(typingKeyFmt, req.ConversationID, req.UserID)
	if err := s.redis.Set(ctx, key, 1, s.window); err != nil {
		s.logger.Warn(ctx, "写入typing镜像失败", logger.F("error", err.Error()))
	}

	s.publishTyping(ctx, rest.EventTypeTypingStarted, req.ConversationID, req.UserID)
	return nil
}

// TypingStop 显式停止输入
func (s *Service) TypingStop(ctx context.Context, req *rest.TypingRequest) error {
	s.tracker.TypingStop(req.ConversationID, req.UserID)

	key := fmt.Sprintf(typingKeyFmt, req.ConversationID, req.UserID)
	if err := s.redis.Del(ctx, key); err != nil {
		s.logger.Warn(ctx, "删除typing镜像失败", logger.F("error", err.Error()))
	}

	s.publishTyping(ctx, rest.EventTypeTypingEnded, req.ConversationID, req.UserID)
	return nil
}

// TypingUsers 查询会话内正在输入的用户
func (s *Service) TypingUsers(conversationID string) *rest.TypingStatusResponse {
	return &rest.TypingStatusResponse{
		ConversationID: conversationID,
		UserIDs:        s.tracker.TypingUsers(conversationID),
	}
}

// UpdatePresence 更新在线状态并广播（lastSeen单调前进）
func (s *Service) UpdatePresence(ctx context.Context, userID int64, online bool, lastSeen int64) error {
	if lastSeen == 0 {
		lastSeen = time.Now().UnixMilli()
	}
	if !s.tracker.UpdatePresence(userID, online, lastSeen) {
		// 迟到的陈旧事件，丢弃
		return nil
	}

	entry, err := json.Marshal(&rest.PresenceStatus{UserID: userID, Online: online, LastSeen: lastSeen})
	if err == nil {
		key := fmt.Sprintf(presenceKeyFmt, userID)
		if err := s.redis.Set(ctx, key, string(entry), presenceTTL); err != nil {
			s.logger.Warn(ctx, "写入presence镜像失败", logger.F("error", err.Error()))
		}
	}

	event := &rest.ConversationEvent{
		Type:      rest.EventTypePresenceChanged,
		Seq:       snowflake.GenerateID(),
		Timestamp: time.Now().UnixMilli(),
		Presence: &rest.PresenceEvent{
			UserID:   userID,
			Online:   online,
			LastSeen: lastSeen,
		},
	}
	s.publishSignal(ctx, event, fmt.Sprintf("%d", userID))
	return nil
}

// GetPresence 查询在线状态，内存未命中时回落redis镜像
func (s *Service) GetPresence(ctx context.Context, userID int64) (*rest.PresenceStatus, error) {
	if online, lastSeen, ok := s.tracker.GetPresence(userID); ok {
		return &rest.PresenceStatus{UserID: userID, Online: online, LastSeen: lastSeen}, nil
	}

	key := fmt.Sprintf(presenceKeyFmt, userID)
	raw, err := s.redis.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			return &rest.PresenceStatus{UserID: userID, Online: false}, nil
		}
		return nil, err
	}

	var status rest.PresenceStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return &rest.PresenceStatus{UserID: userID, Online: false}, nil
	}
	return &status, nil
}

// ApplySignal 应用网关转来的信令事件
func (s *Service) ApplySignal(ctx context.Context, event *rest.ConversationEvent) {
	switch event.Type {
	case rest.EventTypeTypingStarted:
		if event.Typing == nil {
			return
		}
		s.tracker.TypingStart(event.ConversationID, event.Typing.UserID)
	case rest.EventTypeTypingEnded:
		if event.Typing == nil {
			return
		}
		s.tracker.TypingStop(event.ConversationID, event.Typing.UserID)
	case rest.EventTypePresenceChanged:
		if event.Presence == nil {
			return
		}
		s.tracker.UpdatePresence(event.Presence.UserID, event.Presence.Online, event.Presence.LastSeen)
	}
}

func (s *Service) publishTyping(ctx context.Context, eventType, conversationID string, userID int64) {
	event := &rest.ConversationEvent{
		Type:           eventType,
		ConversationID: conversationID,
		Seq:            snowflake.GenerateID(),
		Timestamp:      time.Now().UnixMilli(),
		Typing:         &rest.TypingEvent{UserID: userID},
	}
	s.publishSignal(ctx, event, conversationID)
}

func (s *Service) publishSignal(ctx context.Context, event *rest.ConversationEvent, key string) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error(ctx, "编码信令事件失败", logger.F("error", err.Error()))
		return
	}
	if err := s.producer.SendMessage(rest.TopicSignalEvents, []byte(key), payload); err != nil {
		s.logger.Error(ctx, "发布信令事件失败",
			logger.F("type", event.Type),
			logger.F("error", err.Error()))
	}
}
