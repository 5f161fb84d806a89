package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"orgtalk/apps/im-gateway-service/service"
	"orgtalk/pkg/logger"
)

// WSHandler WebSocket连接处理器，实现 server.WebSocketHandler 接口
type WSHandler struct {
	svc    *service.Service
	logger logger.Logger
}

// NewWSHandler 创建WebSocket处理器
func NewWSHandler(svc *service.Service, log logger.Logger) *WSHandler {
	return &WSHandler{svc: svc, logger: log}
}

// HandleConnection 处理一条WebSocket连接的完整生命周期
// token走query参数，客户端WebSocket API普遍不支持自定义header
func (h *WSHandler) HandleConnection(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()

	claims, err := h.svc.Authenticate(r.URL.Query().Get("token"))
	if err != nil {
		h.logger.Warn(ctx, "WebSocket认证失败", logger.F("error", err.Error()))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "认证失败"), closeDeadline())
		return
	}
	userID := claims.UserID

	if err := h.svc.Register(ctx, userID, conn); err != nil {
		h.logger.Error(ctx, "注册连接失败",
			logger.F("user_id", userID),
			logger.F("error", err.Error()))
		return
	}
	// 连接关闭时用Background，请求ctx此时已取消
	defer h.svc.Unregister(context.Background(), userID, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.logger.Info(ctx, "WebSocket连接关闭",
				logger.F("user_id", userID),
				logger.F("reason", err.Error()))
			return
		}

		if reply := h.svc.HandleFrame(context.Background(), userID, raw); reply != nil {
			h.svc.Reply(context.Background(), userID, reply)
		}
	}
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}
