package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"orgtalk/apps/api-gateway-service/dao"
	"orgtalk/apps/api-gateway-service/handler"
	"orgtalk/apps/api-gateway-service/model"
	"orgtalk/apps/api-gateway-service/service"
	"orgtalk/pkg/discovery"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/middleware"
	"orgtalk/pkg/server"
	"orgtalk/pkg/sessionlocator"
	"orgtalk/pkg/telemetry"
)

func main() {
	serviceName := "api-gateway-service"

	// 初始化OpenTelemetry
	if err := telemetry.InitGlobal(telemetry.DefaultConfig(serviceName)); err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.ShutdownGlobal(ctx); err != nil {
			log.Printf("Failed to shutdown OpenTelemetry: %v", err)
		}
	}()

	// 创建应用程序
	app := server.NewApplication(serviceName, server.WithPostgres())
	app.EnableHTTP()

	// 自动迁移数据库表结构
	postgreSQL := app.GetPostgreSQL()
	if err := postgreSQL.AutoMigrate(&model.DirectoryEntry{}); err != nil {
		panic("Failed to migrate database: " + err.Error())
	}

	cfg := app.GetConfig()
	appLogger := app.GetLogger()

	// K8s服务发现可选，拿不到就回落静态端口
	var disc discovery.Discovery
	if k8sDisc, err := discovery.NewK8sDiscovery(namespace(), appLogger); err != nil {
		appLogger.Warn(context.Background(), "K8s discovery unavailable, using static ports",
			logger.F("error", err.Error()))
	} else {
		disc = k8sDisc
	}
	proxyRouter := service.NewProxyRouter(disc, appLogger)

	// 初始化DAO和Service层
	directoryDAO := dao.NewDirectoryDAO(postgreSQL)
	svc := service.NewService(directoryDAO, app.GetClientManager(), proxyRouter, appLogger, cfg.App.JWTSecret)

	// 接入网关分配，跟踪活跃网关实例的一致性哈希环
	locator := sessionlocator.NewLocator(app.GetRedisClient())
	defer locator.Stop()

	// 注册HTTP路由，除签发token外全部要求JWT
	gatewayMW := middleware.NewAPIGatewayMiddlewareWithSkipPaths(appLogger, cfg.App.JWTSecret,
		[]string{"/api/v1/auth/token"})
	otelMW := middleware.NewOTelMiddleware(serviceName, appLogger)
	app.RegisterHTTPRoutes(func(engine *gin.Engine) {
		engine.Use(gatewayMW.GinRecovery())
		engine.Use(gatewayMW.GinLogging())
		engine.Use(otelMW.GinMiddleware())
		engine.Use(gatewayMW.GinAuth())

		httpHandler := handler.NewHTTPHandler(svc, proxyRouter, locator, appLogger)
		httpHandler.RegisterRoutes(engine)
	})

	// 运行应用程序
	if err := app.Run(); err != nil {
		panic(err)
	}
}

// namespace K8s命名空间，默认default
func namespace() string {
	if ns := os.Getenv("K8S_NAMESPACE"); ns != "" {
		return ns
	}
	return "default"
}
