package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"orgtalk/apps/conversation-service/consumer"
	"orgtalk/apps/conversation-service/dao"
	"orgtalk/apps/conversation-service/handler"
	"orgtalk/apps/conversation-service/service"
	"orgtalk/pkg/middleware"
	"orgtalk/pkg/server"
	"orgtalk/pkg/sessionlocator"
	"orgtalk/pkg/snowflake"
	"orgtalk/pkg/telemetry"
)

func main() {
	serviceName := "conversation-service"

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

	// 创建应用程序
	app := server.NewApplication(serviceName, server.WithMongo())
	app.EnableHTTP()

	// 初始化DAO层
	conversationDAO := dao.NewMongoDAO(app.GetMongoDB())
	if err := conversationDAO.EnsureIndexes(context.Background()); err != nil {
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	// 初始化Service层并启动单序合并队列，路由表用于下行扇出
	routes := sessionlocator.NewRouteTable(app.GetRedisClient())
	svc := service.NewService(conversationDAO, app.GetKafkaProducer(), routes, app.GetLogger())
	ctx := context.Background()
	svc.StartQueue(ctx)

	// 启动事件消费者
	cfg := app.GetConfig()
	eventConsumer := consumer.NewEventConsumer(svc)
	go func() {
		log.Println("启动会话事件消费者...")
		if err := eventConsumer.Start(ctx, cfg.Kafka.Brokers); err != nil {
			log.Fatalf("Failed to start event consumer: %v", err)
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
	return 2
}
