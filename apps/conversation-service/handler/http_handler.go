package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"orgtalk/api/rest"
	"orgtalk/apps/conversation-service/service"
	"orgtalk/pkg/httpx"
	"orgtalk/pkg/logger"
)

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
	api := r.Group("/api/v1/conversations")
	{
		api.POST("/create", h.CreateConversation)
		api.GET("/snapshot", h.Snapshot) // 合并后的会话列表
		api.POST("/read", h.MarkRead)    // 显式已读（权威重置）
		api.POST("/archive", h.Archive)
		api.POST("/mute", h.Mute)
	}
}

// CreateConversation 创建会话
func (h *HTTPHandler) CreateConversation(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, gin.H{"success": false}, err)
		return
	}

	err := h.service.CreateConversation(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Create conversation failed", logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, gin.H{"success": err == nil}, err)
}

// Snapshot 会话快照
func (h *HTTPHandler) Snapshot(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		httpx.WriteObject(c, nil, err)
		return
	}
	includeArchived := c.Query("include_archived") == "true"

	snapshot, err := h.service.Snapshot(ctx, userID, includeArchived)
	if err != nil {
		h.logger.Error(ctx, "Snapshot failed", logger.F("error", err.Error()))
		httpx.WriteObject(c, nil, err)
		return
	}
	httpx.WriteObject(c, snapshot, nil)
}

// MarkRead 标记会话已读
func (h *HTTPHandler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.MarkReadRequest
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, gin.H{"success": false}, err)
		return
	}

	err := h.service.MarkRead(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Mark read failed", logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, gin.H{"success": err == nil}, err)
}

// Archive 归档设置
func (h *HTTPHandler) Archive(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.ArchiveRequest
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, gin.H{"success": false}, err)
		return
	}

	err := h.service.Archive(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Archive failed", logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, gin.H{"success": err == nil}, err)
}

// Mute 免打扰设置
func (h *HTTPHandler) Mute(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.MuteRequest
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, gin.H{"success": false}, err)
		return
	}

	err := h.service.Mute(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Mute failed", logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, gin.H{"success": err == nil}, err)
}
