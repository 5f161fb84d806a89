package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"orgtalk/apps/im-gateway-service/consumer"
	"orgtalk/apps/im-gateway-service/handler"
	"orgtalk/apps/im-gateway-service/service"
	"orgtalk/pkg/observability"
	"orgtalk/pkg/server"
	"orgtalk/pkg/sessionlocator"
	"orgtalk/pkg/snowflake"
	"orgtalk/pkg/telemetry"
)

func main() {
	serviceName := "im-gateway-service"

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

	// 初始化snowflake，网关为上行消息预分配消息ID
	if err := snowflake.InitGlobalSnowflake(machineID()); err != nil {
		log.Fatalf("Failed to initialize snowflake: %v", err)
	}

	// 创建应用程序
	app := server.NewApplication(serviceName)
	app.EnableHTTP()
	wsServer := app.EnableWebSocket()

	cfg := app.GetConfig()
	redisClient := app.GetRedisClient()

	// 实例ID按地址生成，重启后下行topic不变
	instanceID := fmt.Sprintf("im-gateway-%s-%d", cfg.Gateway.Instance.Host, cfg.Gateway.Instance.Port)

	// 初始化路由表和Service层
	routes := sessionlocator.NewRouteTable(redisClient)
	registry := service.NewRegistry()
	svc := service.NewService(registry, app.GetKafkaProducer(), routes,
		app.GetLogger(), cfg.App.JWTSecret, instanceID)

	ctx := context.Background()

	// 实例注册与心跳
	heartbeat := sessionlocator.NewHeartbeatManager(redisClient, instanceID,
		cfg.Gateway.Instance.Host, cfg.Gateway.Instance.Port)
	if err := heartbeat.Start(ctx); err != nil {
		log.Fatalf("Failed to start heartbeat manager: %v", err)
	}

	// 孤儿路由清理器（带领导者选举，多实例只跑一个）
	cleaner := sessionlocator.NewCleaner(redisClient, instanceID)
	cleaner.Start(ctx)

	// 启动下行消费者
	downlinkConsumer := consumer.NewDownlinkConsumer(svc)
	go func() {
		log.Println("启动下行消费者...")
		if err := downlinkConsumer.Start(ctx, cfg.Kafka.Brokers); err != nil {
			log.Fatalf("Failed to start downlink consumer: %v", err)
		}
	}()

	// 注册WebSocket处理器
	wsHandler := handler.NewWSHandler(svc, app.GetLogger())
	wsServer.RegisterHandler("/ws", wsHandler)

	// 注册HTTP管理路由，日志走Loki结构化输出
	lokiLogger := observability.NewLokiLogger(serviceName, app.GetLogger())
	obsMW := observability.NewObservabilityMiddleware(serviceName, lokiLogger)
	app.RegisterHTTPRoutes(func(engine *gin.Engine) {
		engine.Use(obsMW.GinMiddleware())

		httpHandler := handler.NewHTTPHandler(svc, routes, app.GetLogger())
		httpHandler.RegisterRoutes(engine)
	})

	// 运行应用程序
	err := app.Run()

	// 退出前注销实例并断开所有连接
	heartbeat.Stop(context.Background())
	cleaner.Stop()
	registry.CloseAll()

	if err != nil {
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
	return 6
}
