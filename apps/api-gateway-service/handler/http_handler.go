package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"orgtalk/api/rest"
	"orgtalk/apps/api-gateway-service/service"
	"orgtalk/pkg/httpx"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/sessionlocator"
)

var errMissingServiceNumber = errors.New("service_number不能为空")

// HTTPHandler API网关自有接口：认证、通讯录、聚合查询
// 其余路径由NoRoute反向代理到后端服务
type HTTPHandler struct {
	service *service.Service
	router  *service.ProxyRouter
	locator *sessionlocator.Locator
	logger  logger.Logger
}

// NewHTTPHandler 创建HTTP处理器，locator为nil时不提供网关分配接口
func NewHTTPHandler(svc *service.Service, router *service.ProxyRouter,
	locator *sessionlocator.Locator, log logger.Logger) *HTTPHandler {
	return &HTTPHandler{service: svc, router: router, locator: locator, logger: log}
}

// RegisterRoutes 注册HTTP路由
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	authAPI := r.Group("/api/v1/auth")
	{
		authAPI.POST("/token", h.IssueToken)
	}

	dirAPI := r.Group("/api/v1/directory")
	{
		dirAPI.POST("/import", h.ImportDirectory)
		dirAPI.GET("/search", h.SearchDirectory)
		dirAPI.GET("/:service_number", h.GetEntry)
	}

	r.GET("/api/v1/overview", h.Overview)

	if h.locator != nil {
		// 为客户端分配接入网关，同一用户重连落到同一实例
		r.GET("/api/v1/gateway/assign", h.AssignGateway)
	}

	// 未匹配的路径按资源段代理到后端服务
	r.NoRoute(func(c *gin.Context) {
		if err := h.router.ProxyRequest(c.Writer, c.Request); err != nil {
			h.logger.Warn(c.Request.Context(), "代理请求失败",
				logger.F("path", c.Request.URL.Path),
				logger.F("error", err.Error()))
		}
	})
}

// Health 健康检查
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

type tokenRequest struct {
	ServiceNumber string `json:"service_number" binding:"required"`
}

// IssueToken 按服务号签发访问token
func (h *HTTPHandler) IssueToken(c *gin.Context) {
	ctx := c.Request.Context()
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		httpx.WriteObject(c, nil, errMissingServiceNumber)
		return
	}

	token, entry, err := h.service.IssueToken(ctx, req.ServiceNumber)
	if err != nil {
		h.logger.Warn(ctx, "Issue token failed",
			logger.F("service_number", req.ServiceNumber),
			logger.F("error", err.Error()))
		httpx.WriteObject(c, nil, err)
		return
	}
	httpx.WriteObject(c, gin.H{
		"token":          token,
		"user_id":        entry.ID,
		"service_number": entry.ServiceNumber,
		"name":           entry.Name,
	}, nil)
}

// ImportDirectory 批量导入通讯录
func (h *HTTPHandler) ImportDirectory(c *gin.Context) {
	ctx := c.Request.Context()
	var rows []rest.DirectoryImportRow
	if err := c.ShouldBindJSON(&rows); err != nil {
		httpx.WriteObject(c, nil, err)
		return
	}

	result, err := h.service.ImportDirectory(ctx, rows)
	if err != nil {
		h.logger.Error(ctx, "Import directory failed", logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, result, err)
}

// SearchDirectory 通讯录模糊查询
func (h *HTTPHandler) SearchDirectory(c *gin.Context) {
	ctx := c.Request.Context()
	keyword := c.Query("keyword")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	entries, total, err := h.service.SearchDirectory(ctx, keyword, page, size)
	if err != nil {
		h.logger.Error(ctx, "Search directory failed",
			logger.F("keyword", keyword),
			logger.F("error", err.Error()))
		httpx.WriteObject(c, nil, err)
		return
	}
	httpx.WriteObject(c, gin.H{"entries": entries, "total": total, "page": page, "size": size}, nil)
}

// GetEntry 按服务号查询通讯录条目
func (h *HTTPHandler) GetEntry(c *gin.Context) {
	ctx := c.Request.Context()
	serviceNumber := c.Param("service_number")

	entry, err := h.service.GetEntry(ctx, serviceNumber)
	httpx.WriteObject(c, entry, err)
}

// AssignGateway 按用户ID一致性哈希选择接入网关
func (h *HTTPHandler) AssignGateway(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetInt64("user_id")
	if userID == 0 {
		httpx.WriteObject(c, nil, errors.New("未认证"))
		return
	}

	instance, err := h.locator.GetGatewayForUser(strconv.FormatInt(userID, 10))
	if err != nil {
		h.logger.Error(ctx, "Assign gateway failed",
			logger.F("user_id", userID),
			logger.F("error", err.Error()))
		httpx.WriteObject(c, nil, err)
		return
	}
	httpx.WriteObject(c, gin.H{
		"instance_id": instance.ID,
		"ws_url":      "ws://" + instance.GetAddress() + "/ws",
	}, nil)
}

// Overview 当前用户的首屏聚合数据
func (h *HTTPHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetInt64("user_id")
	if userID == 0 {
		httpx.WriteObject(c, nil, errors.New("未认证"))
		return
	}

	overview, err := h.service.Overview(ctx, userID, c.GetHeader("Authorization"))
	if err != nil {
		h.logger.Error(ctx, "Overview failed",
			logger.F("user_id", userID),
			logger.F("error", err.Error()))
	}
	httpx.WriteObject(c, overview, err)
}
