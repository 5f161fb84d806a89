package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"orgtalk/api/rest"
	"orgtalk/apps/presence-service/service"
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
	api := r.Group("/api/v1/presence")
	{
		api.POST("/typing/start", h.TypingStart)
		api.POST("/typing/stop", h.TypingStop)
		api.GET("/typing", h.TypingUsers)
		api.POST("/update", h.UpdatePresence)
		api.GET("/:user_id", h.GetPresence)
	}
}

// TypingStart 开始/续期输入状态
func (h *HTTPHandler) TypingStart(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.TypingRequest
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, gin.H{"success": false}, err)
		return
	}
	err := h.service.TypingStart(ctx, &req)
	httpx.WriteObject(c, gin.H{"success": err == nil}, err)
}

// TypingStop 停止输入
func (h *HTTPHandler) TypingStop(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.TypingRequest
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, gin.H{"success": false}, err)
		return
	}
	err := h.service.TypingStop(ctx, &req)
	httpx.WriteObject(c, gin.H{"success": err == nil}, err)
}

// TypingUsers 查询正在输入的用户
func (h *HTTPHandler) TypingUsers(c *gin.Context) {
	conversationID := c.Query("conversation_id")
	if conversationID == "" {
		httpx.WriteObject(c, nil, errMissingConversation)
		return
	}
	httpx.WriteObject(c, h.service.TypingUsers(conversationID), nil)
}

// UpdatePresence 上报在线状态
func (h *HTTPHandler) UpdatePresence(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.PresenceStatus
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, gin.H{"success": false}, err)
		return
	}
	err := h.service.UpdatePresence(ctx, req.UserID, req.Online, req.LastSeen)
	if err != nil {
		h.logger.Error(ctx, "Update presence failed", logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, gin.H{"success": err == nil}, err)
}

// GetPresence 查询在线状态
func (h *HTTPHandler) GetPresence(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		httpx.WriteObject(c, nil, err)
		return
	}

	status, err := h.service.GetPresence(ctx, userID)
	if err != nil {
		h.logger.Error(ctx, "Get presence failed", logger.F("error", err.Error()))
		httpx.WriteObject(c, nil, err)
		return
	}
	httpx.WriteObject(c, status, nil)
}
