package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"orgtalk/apps/im-gateway-service/service"
	"orgtalk/pkg/httpx"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/sessionlocator"
)

// HTTPHandler 网关管理接口
type HTTPHandler struct {
	svc    *service.Service
	routes *sessionlocator.RouteTable
	logger logger.Logger
}

// NewHTTPHandler 创建HTTP处理器
func NewHTTPHandler(svc *service.Service, routes *sessionlocator.RouteTable, log logger.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, routes: routes, logger: log}
}

// RegisterRoutes 注册HTTP路由
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1/gateway")
	{
		api.GET("/stats", h.Stats)
		api.GET("/online/:user_id", h.Online)
	}
}

// Stats 本实例连接统计
func (h *HTTPHandler) Stats(c *gin.Context) {
	httpx.WriteObject(c, gin.H{
		"instance_id": h.svc.InstanceID(),
		"connections": h.svc.Registry().Count(),
	}, nil)
}

// Online 查询用户是否在线（任意网关实例）
func (h *HTTPHandler) Online(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		httpx.WriteObject(c, nil, err)
		return
	}

	instanceID, err := h.routes.LookupUser(ctx, userID)
	if err != nil {
		httpx.WriteObject(c, nil, err)
		return
	}
	httpx.WriteObject(c, gin.H{
		"user_id":  userID,
		"online":   instanceID != "",
		"instance": instanceID,
	}, nil)
}
