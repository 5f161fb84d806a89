package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"orgtalk/api/rest"
	"orgtalk/apps/im-gateway-service/model"
	"orgtalk/pkg/auth"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/snowflake"
)

// Publisher 事件发布接口
type Publisher interface {
	SendMessage(topic string, key, value []byte) error
}

// UserRouter 用户路由表接口，sessionlocator.RouteTable实现
type UserRouter interface {
	BindUser(ctx context.Context, userID int64, instanceID string) error
	RefreshUser(ctx context.Context, userID int64) error
	UnbindUser(ctx context.Context, userID int64) error
}

// Service IM网关服务
// 持有本地连接、维护用户路由表，上行消息进Kafka、下行消息推本地连接
type Service struct {
	registry   *Registry
	producer   Publisher
	routes     UserRouter
	logger     logger.Logger
	jwtSecret  string
	instanceID string
}

// NewService 创建服务实例
func NewService(registry *Registry, producer Publisher, routes UserRouter,
	log logger.Logger, jwtSecret, instanceID string) *Service {
	return &Service{
		registry:   registry,
		producer:   producer,
		routes:     routes,
		logger:     log,
		jwtSecret:  jwtSecret,
		instanceID: instanceID,
	}
}

// InstanceID 网关实例ID，同时是下行topic后缀
func (s *Service) InstanceID() string {
	return s.instanceID
}

// Registry 本地连接注册表
func (s *Service) Registry() *Registry {
	return s.registry
}

// Authenticate 校验JWT并返回业务声明
func (s *Service) Authenticate(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("token required")
	}
	return auth.ValidateJWT(token, s.jwtSecret)
}

// Register 注册连接并绑定用户路由，下行扇出据此找到本实例
func (s *Service) Register(ctx context.Context, userID int64, conn *websocket.Conn) error {
	s.registry.Add(userID, conn)
	if err := s.routes.BindUser(ctx, userID, s.instanceID); err != nil {
		return fmt.Errorf("绑定用户路由失败: %w", err)
	}
	s.logger.Info(ctx, "用户连接已注册",
		logger.F("user_id", userID),
		logger.F("connections", s.registry.Count()))
	return nil
}

// Unregister 移除连接并解绑路由，被新连接顶掉的旧连接只退出不解绑
func (s *Service) Unregister(ctx context.Context, userID int64, conn *websocket.Conn) {
	if !s.registry.Remove(userID, conn) {
		return
	}
	if err := s.routes.UnbindUser(ctx, userID); err != nil {
		s.logger.Warn(ctx, "解绑用户路由失败",
			logger.F("user_id", userID),
			logger.F("error", err.Error()))
	}
	s.logger.Info(ctx, "用户连接已注销", logger.F("user_id", userID))
}

// HandleFrame 处理上行帧，返回需要回写的下行帧
func (s *Service) HandleFrame(ctx context.Context, userID int64, raw []byte) *model.ServerFrame {
	var frame model.ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return &model.ServerFrame{
			Op:        model.OpError,
			Reason:    "帧格式非法",
			Timestamp: time.Now().UnixMilli(),
		}
	}

	switch frame.Op {
	case model.OpHeartbeat:
		return s.handleHeartbeat(ctx, userID)
	case model.OpMessage:
		return s.handleUplink(ctx, userID, frame.Message)
	default:
		return &model.ServerFrame{
			Op:        model.OpError,
			Reason:    fmt.Sprintf("未知操作: %s", frame.Op),
			Timestamp: time.Now().UnixMilli(),
		}
	}
}

// handleHeartbeat 续期用户路由并返回pong
func (s *Service) handleHeartbeat(ctx context.Context, userID int64) *model.ServerFrame {
	if err := s.routes.RefreshUser(ctx, userID); err != nil {
		s.logger.Warn(ctx, "续期用户路由失败",
			logger.F("user_id", userID),
			logger.F("error", err.Error()))
	}
	return &model.ServerFrame{Op: model.OpPong, Timestamp: time.Now().UnixMilli()}
}

// handleUplink 上行消息：分配消息ID后进Kafka，存储端靠唯一索引幂等
// 回执携带客户端AckID和服务端消息ID
func (s *Service) handleUplink(ctx context.Context, userID int64, msg *rest.UplinkMessage) *model.ServerFrame {
	now := time.Now().UnixMilli()
	if msg == nil || msg.ConversationID == "" {
		return &model.ServerFrame{Op: model.OpError, Reason: "消息体缺失", Timestamp: now}
	}
	if !msg.Type.Valid() {
		return &model.ServerFrame{Op: model.OpError, AckID: msg.AckID, Reason: "消息类型非法", Timestamp: now}
	}

	// 发送者以连接身份为准，不信任帧内的sender_id
	msg.SenderID = userID
	msg.MessageID = snowflake.GenerateID()
	if msg.Timestamp == 0 {
		msg.Timestamp = now
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return &model.ServerFrame{Op: model.OpError, AckID: msg.AckID, Reason: "消息编码失败", Timestamp: now}
	}
	if err := s.producer.SendMessage(rest.TopicUplinkMessages, []byte(msg.ConversationID), payload); err != nil {
		s.logger.Error(ctx, "上行消息入队失败",
			logger.F("conversation_id", msg.ConversationID),
			logger.F("error", err.Error()))
		return &model.ServerFrame{Op: model.OpError, AckID: msg.AckID, Reason: "消息入队失败", Timestamp: now}
	}

	return &model.ServerFrame{
		Op:        model.OpAck,
		AckID:     msg.AckID,
		MessageID: msg.MessageID,
		Timestamp: now,
	}
}

// Deliver 把下行事件推到用户的本地连接
func (s *Service) Deliver(ctx context.Context, msg *rest.DownlinkMessage) error {
	frame := &model.ServerFrame{
		Op:        model.OpEvent,
		Timestamp: time.Now().UnixMilli(),
		Event:     msg.Event,
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if err := s.registry.Push(msg.UserID, payload); err != nil {
		// 用户已断开，路由表过期前的窗口消息丢给快照补齐
		s.logger.Warn(ctx, "下行推送失败",
			logger.F("user_id", msg.UserID),
			logger.F("error", err.Error()))
		return nil
	}
	return nil
}

// Reply 把下行帧回写到用户连接
func (s *Service) Reply(ctx context.Context, userID int64, frame *model.ServerFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error(ctx, "编码下行帧失败", logger.F("error", err.Error()))
		return
	}
	if err := s.registry.Push(userID, payload); err != nil {
		s.logger.Warn(ctx, "回写下行帧失败",
			logger.F("user_id", userID),
			logger.F("error", err.Error()))
	}
}
