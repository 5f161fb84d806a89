package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"orgtalk/api/rest"
	"orgtalk/apps/ptt-service/service"
	"orgtalk/pkg/httpx"
	"orgtalk/pkg/logger"
)

var errMissingConversation = errors.New("conversation_id不能为空")

// HTTPHandler HTTP处理器
type HTTPHandler struct {
	service *service.Service
	logger  logger.Logger
}

// NewHTTPHandler 创建HTTP处理器
func NewHTTPHandler(svc *service.Service, log logger.Logger) *HTTPHandler {
	return &HTTPHandler{service: svc, logger: log}
}

// RegisterRoutes 注册HTTP路由
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1/ptt")
	{
		api.POST("/grant", h.Grant)
		api.POST("/release", h.Release)
		api.POST("/cancel", h.Cancel)
		api.GET("/speaker", h.CurrentSpeaker)
	}
}

// Grant 申请发言权
func (h *HTTPHandler) Grant(c *gin.Context) {
	h.pttAction(c, h.service.Grant)
}

// Release 释放发言权
func (h *HTTPHandler) Release(c *gin.Context) {
	h.pttAction(c, h.service.Release)
}

// Cancel 取消发言
func (h *HTTPHandler) Cancel(c *gin.Context) {
	h.pttAction(c, h.service.Cancel)
}

// CurrentSpeaker 查询当前发言者
func (h *HTTPHandler) CurrentSpeaker(c *gin.Context) {
	ctx := c.Request.Context()
	conversationID := c.Query("conversation_id")
	if conversationID == "" {
		httpx.WriteObject(c, nil, errMissingConversation)
		return
	}

	speaker, err := h.service.CurrentSpeaker(ctx, conversationID)
	if err != nil {
		h.logger.Error(ctx, "Get current speaker failed",
			logger.F("conversation_id", conversationID),
			logger.F("error", err.Error()))
		httpx.WriteObject(c, nil, err)
		return
	}
	httpx.WriteObject(c, gin.H{"conversation_id": conversationID, "speaker": speaker}, nil)
}

func (h *HTTPHandler) pttAction(c *gin.Context, fn func(ctx context.Context, req *rest.PTTRequest) (*rest.PTTResponse, error)) {
	ctx := c.Request.Context()
	var req rest.PTTRequest
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, &rest.PTTResponse{Granted: false, Reason: "参数错误"}, err)
		return
	}

	resp, err := fn(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "PTT action failed",
			logger.F("conversation_id", req.ConversationID),
			logger.F("user_id", req.UserID),
			logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, resp, err)
}
