package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"orgtalk/apps/ptt-service/dao"
	"orgtalk/apps/ptt-service/handler"
	"orgtalk/apps/ptt-service/service"
	"orgtalk/pkg/middleware"
	"orgtalk/pkg/server"
	"orgtalk/pkg/snowflake"
	"orgtalk/pkg/telemetry"
)

func main() {
	serviceName := "ptt-service"

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

	// 初始化snowflake
	if err := snowflake.InitGlobalSnowflake(machineID()); err != nil {
		log.Fatalf("Failed to initialize snowflake: %v", err)
	}

	// 创建应用程序（发言权状态全在redis，无持久化存储）
	app := server.NewApplication(serviceName)
	app.EnableHTTP()

	cfg := app.GetConfig()

	// 初始化存储和Service层
	store := dao.NewRedisSessionStore(app.GetRedisClient())
	svc := service.NewService(store, app.GetKafkaProducer(), app.GetLogger(),
		time.Duration(cfg.PTT.MinUtteranceMs)*time.Millisecond,
		time.Duration(cfg.PTT.LivenessSec)*time.Second)

	// 注册HTTP路由
	otelMW := middleware.NewOTelMiddleware(serviceName, app.GetLogger())
	app.RegisterHTTPRoutes(func(engine *gin.Engine) {
		engine.Use(otelMW.GinMiddleware())

		httpHandler := handler.NewHTTPHandler(svc, app.GetLogger())
		httpHandler.RegisterRoutes(engine)
	})

	// 运行应用程序
	if err := app.Run(); err != nil {
		panic(err)
	}
}

// machineID 从环境变量取snowflake机器ID
func machineID() int64 {
	if raw := os.Getenv("MACHINE_ID"); raw != "" {
		var id int64
		if _, err := fmt.Sscanf(raw, "%d", &id); err == nil {
			return id
		}
	}
	return 5
}
