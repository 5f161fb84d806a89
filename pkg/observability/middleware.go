package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orgtalk/pkg/logger"
)

// ObservabilityMiddleware 统一的可观测性中间件
type ObservabilityMiddleware struct {
	serviceName string
	logger      *LokiLogger
	tracer      trace.Tracer
}

// NewObservabilityMiddleware 创建可观测性中间件
func NewObservabilityMiddleware(serviceName string, lokiLogger *LokiLogger) *ObservabilityMiddleware {
	return &ObservabilityMiddleware{
		serviceName: serviceName,
		logger:      lokiLogger,
		tracer:      otel.Tracer(serviceName),
	}
}

// GinMiddleware Gin HTTP中间件
func (m *ObservabilityMiddleware) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 生成或获取请求ID
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// 创建span
		ctx, span := m.tracer.Start(c.Request.Context(), c.Request.Method+" "+c.Request.URL.Path)
		defer span.End()

		// 设置span属性
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.url", c.Request.URL.String()),
			attribute.String("http.route", c.FullPath()),
			attribute.String("http.user_agent", c.Request.UserAgent()),
			attribute.String("request.id", requestID),
		)

		// 在context中设置业务信息（类型安全）
		ctx = WithRequestID(ctx, requestID)
		ctx = WithClientIP(ctx, c.ClientIP())

		// 从JWT或其他方式获取用户ID
		if userIDStr := c.GetHeader("X-User-ID"); userIDStr != "" {
			if userID, err := strconv.ParseInt(userIDStr, 10, 64); err == nil {
				ctx = WithUserID(ctx, userID)
				span.SetAttributes(attribute.Int64("user.id", userID))
			}
		}

		// 更新请求context
		c.Request = c.Request.WithContext(ctx)

		// 记录请求开始
		start := time.Now()
		m.logger.Info(ctx, "HTTP request started",
			logger.F("method", c.Request.Method),
			logger.F("path", c.Request.URL.Path),
			logger.F("remote_addr", c.ClientIP()),
		)

		// 处理请求
		c.Next()

		// 记录请求结束
		duration := time.Since(start)
		status := c.Writer.Status()

		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int64("http.response_size", int64(c.Writer.Size())),
			attribute.Float64("http.duration_ms", float64(duration.Nanoseconds())/1e6),
		)

		// 设置span状态
		if status >= 400 {
			span.SetStatus(codes.Error, "HTTP error")
		} else {
			span.SetStatus(codes.Ok, "HTTP success")
		}

		// 记录响应日志
		logLevel := "info"
		if status >= 500 {
			logLevel = "error"
		} else if status >= 400 {
			logLevel = "warn"
		}

		// 记录响应日志
		if logLevel == "error" {
			m.logger.Error(ctx, "HTTP request completed",
				logger.F("method", c.Request.Method),
				logger.F("path", c.Request.URL.Path),
				logger.F("status", status),
				logger.F("duration_ms", float64(duration.Nanoseconds())/1e6),
				logger.F("remote_addr", c.ClientIP()),
			)
		} else if logLevel == "warn" {
			m.logger.Warn(ctx, "HTTP request completed",
				logger.F("method", c.Request.Method),
				logger.F("path", c.Request.URL.Path),
				logger.F("status", status),
				logger.F("duration_ms", float64(duration.Nanoseconds())/1e6),
				logger.F("remote_addr", c.ClientIP()),
			)
		} else {
			m.logger.Info(ctx, "HTTP request completed",
				logger.F("method", c.Request.Method),
				logger.F("path", c.Request.URL.Path),
				logger.F("status", status),
				logger.F("duration_ms", float64(duration.Nanoseconds())/1e6),
				logger.F("remote_addr", c.ClientIP()),
			)
		}
	}
}
