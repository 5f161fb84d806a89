package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"orgtalk/api/rest"
	"orgtalk/apps/message-service/dao"
	"orgtalk/apps/message-service/service"
	"orgtalk/pkg/httpx"
	"orgtalk/pkg/logger"
)

// HTTPHandler HTTP处理器
type HTTPHandler struct {
	service   *service.Service
	searchDAO dao.SearchDAO
	logger    logger.Logger
}

// NewHTTPHandler 创建HTTP处理器
func NewHTTPHandler(svc *service.Service, searchDAO dao.SearchDAO, log logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service:   svc,
		searchDAO: searchDAO,
		logger:    log,
	}
}

// RegisterRoutes 注册HTTP路由
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1/messages")
	{
		api.POST("/send", h.SendMessage)     // 短连接备用发送通道
		api.POST("/status", h.UpdateStatus)  // 接收者上报投递/已读
		api.GET("/history", h.GetHistory)    // 历史消息
		api.GET("/search", h.SearchMessages) // 归档全文检索
		api.POST("/edit", h.EditMessage)
		api.POST("/delete", h.DeleteMessage)
		api.GET("/:id/aggregate", h.GetAggregateStatus)
	}
}

// SendMessage 发送消息
func (h *HTTPHandler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error(ctx, "Invalid send message request", logger.F("error", err.Error()))
		httpx.WriteObject(c, &rest.SendMessageResponse{Success: false, Message: "请求格式错误"}, err)
		return
	}

	wire, seq, err := h.service.SendMessage(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Send message failed", logger.F("error", err.Error()))
		httpx.WriteObject(c, &rest.SendMessageResponse{Success: false, Message: err.Error()}, err)
		return
	}
	httpx.WriteObject(c, &rest.SendMessageResponse{
		Success:   true,
		Message:   "发送成功",
		MessageID: wire.MessageID,
		Seq:       seq,
	}, nil)
}

// UpdateStatus 上报投递状态
func (h *HTTPHandler) UpdateStatus(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error(ctx, "Invalid status request", logger.F("error", err.Error()))
		httpx.WriteObject(c, gin.H{"success": false}, err)
		return
	}

	err := h.service.UpdateStatus(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Update status failed", logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, gin.H{"success": err == nil}, err)
}

// GetHistory 历史消息
func (h *HTTPHandler) GetHistory(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.HistoryRequest
	if err := c.BindQuery(&req); err != nil {
		httpx.WriteObject(c, &rest.HistoryResponse{Messages: []*rest.WireMessage{}}, err)
		return
	}

	messages, total, err := h.service.GetHistory(ctx, req.ConversationID, req.Page, req.Size)
	if err != nil {
		h.logger.Error(ctx, "Get history failed", logger.F("error", err.Error()))
		httpx.WriteObject(c, nil, err)
		return
	}
	httpx.WriteObject(c, &rest.HistoryResponse{
		Messages: messages,
		Total:    total,
		Page:     req.Page,
		Size:     req.Size,
	}, nil)
}

// SearchMessages 归档全文检索
func (h *HTTPHandler) SearchMessages(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.SearchMessagesRequest
	if err := c.BindQuery(&req); err != nil {
		httpx.WriteObject(c, &rest.SearchMessagesResponse{Messages: []*rest.WireMessage{}}, err)
		return
	}

	messages, total, err := h.searchDAO.SearchMessages(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Search messages failed", logger.F("error", err.Error()))
		httpx.WriteObject(c, nil, err)
		return
	}
	httpx.WriteObject(c, &rest.SearchMessagesResponse{Messages: messages, Total: total}, nil)
}

// EditMessage 编辑消息
func (h *HTTPHandler) EditMessage(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.EditMessageRequest
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, gin.H{"success": false}, err)
		return
	}

	err := h.service.EditMessage(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Edit message failed", logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, gin.H{"success": err == nil}, err)
}

// DeleteMessage 删除消息（墓碑）
func (h *HTTPHandler) DeleteMessage(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.DeleteMessageRequest
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, gin.H{"success": false}, err)
		return
	}

	err := h.service.DeleteMessage(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Delete message failed", logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, gin.H{"success": err == nil}, err)
}

// GetAggregateStatus 查询聚合投递状态
// recipients参数形如 ?recipients=2,3,4
func (h *HTTPHandler) GetAggregateStatus(c *gin.Context) {
	ctx := c.Request.Context()
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpx.WriteObject(c, nil, err)
		return
	}

	var recipients []int64
	if raw := c.QueryArray("recipients"); len(raw) > 0 {
		for _, item := range raw {
			if id, err := strconv.ParseInt(item, 10, 64); err == nil {
				recipients = append(recipients, id)
			}
		}
	}

	status, err := h.service.GetAggregateStatus(ctx, messageID, recipients)
	if err != nil {
		h.logger.Error(ctx, "Get aggregate status failed", logger.F("error", err.Error()))
		httpx.WriteObject(c, nil, err)
		return
	}
	httpx.WriteObject(c, &rest.AggregateStatusResponse{MessageID: messageID, Status: status}, nil)
}
