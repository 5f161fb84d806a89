package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"orgtalk/api/rest"
	"orgtalk/apps/call-service/service"
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
	api := r.Group("/api/v1/calls")
	{
		api.POST("/initiate", h.InitiateCall)
		api.POST("/answer", h.Answer)
		api.POST("/decline", h.Decline)
		api.POST("/end", h.End)
		api.POST("/participant", h.UpdateParticipant)
		api.GET("/:call_id", h.GetCall)
	}
}

// initiateCallBody 发起通话请求体，参与者列表随请求给出
type initiateCallBody struct {
	rest.InitiateCallRequest
	Participants []int64 `json:"participants" binding:"required"`
}

// InitiateCall 发起通话
func (h *HTTPHandler) InitiateCall(c *gin.Context) {
	ctx := c.Request.Context()
	var body initiateCallBody
	if err := c.Bind(&body); err != nil {
		httpx.WriteObject(c, &rest.CallResponse{Success: false, Message: "参数错误"}, err)
		return
	}

	resp, err := h.service.InitiateCall(ctx, &body.InitiateCallRequest, body.Participants)
	if err != nil {
		h.logger.Error(ctx, "Initiate call failed",
			logger.F("conversation_id", body.ConversationID),
			logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, resp, err)
}

// Answer 接听通话
func (h *HTTPHandler) Answer(c *gin.Context) {
	h.callAction(c, h.service.Answer)
}

// Decline 拒接通话
func (h *HTTPHandler) Decline(c *gin.Context) {
	h.callAction(c, h.service.Decline)
}

// End 结束通话
func (h *HTTPHandler) End(c *gin.Context) {
	h.callAction(c, h.service.End)
}

// UpdateParticipant 更新参与者静音/视频开关
func (h *HTTPHandler) UpdateParticipant(c *gin.Context) {
	ctx := c.Request.Context()
	var req rest.CallActionRequest
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, gin.H{"success": false}, err)
		return
	}
	err := h.service.UpdateParticipant(ctx, &req)
	httpx.WriteObject(c, gin.H{"success": err == nil}, err)
}

// GetCall 查询通话详情
func (h *HTTPHandler) GetCall(c *gin.Context) {
	ctx := c.Request.Context()
	callID, err := strconv.ParseInt(c.Param("call_id"), 10, 64)
	if err != nil {
		httpx.WriteObject(c, nil, err)
		return
	}

	resp, err := h.service.GetCall(ctx, callID)
	httpx.WriteObject(c, resp, err)
}

func (h *HTTPHandler) callAction(c *gin.Context, fn func(ctx context.Context, req *rest.CallActionRequest) (*rest.CallResponse, error)) {
	ctx := c.Request.Context()
	var req rest.CallActionRequest
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, &rest.CallResponse{Success: false, Message: "参数错误"}, err)
		return
	}

	resp, err := fn(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Call action failed",
			logger.F("call_id", req.CallID),
			logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, resp, err)
}
