package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"orgtalk/apps/presence-service/consumer"
	"orgtalk/apps/presence-service/handler"
	"orgtalk/apps/presence-service/service"
	"orgtalk/pkg/middleware"
	"orgtalk/pkg/server"
	"orgtalk/pkg/snowflake"
	"orgtalk/pkg/telemetry"
)

func main() {
	serviceName := "presence-service"

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

	// 创建应用程序（无持久化存储，状态纯内存+redis镜像）
	app := server.NewApplication(serviceName)
	app.EnableHTTP()

	cfg := app.GetConfig()
	window := time.Duration(cfg.Typing.WindowSec) * time.Second

	// 初始化Service层
	tracker := service.NewTracker(window)
	svc := service.NewService(tracker, app.GetRedisClient(), app.GetKafkaProducer(), app.GetLogger(), window)

	ctx := context.Background()
	svc.StartSweeper(ctx, time.Duration(cfg.Typing.RefreshSec)*time.Second)

	// 启动信令消费者
	signalConsumer := consumer.NewSignalConsumer(svc)
	go func() {
		log.Println("启动信令消费者...")
		if err := signalConsumer.Start(ctx, cfg.Kafka.Brokers); err != nil {
			log.Fatalf("Failed to start signal consumer: %v", err)
		}
	}()

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
	return 3
}
