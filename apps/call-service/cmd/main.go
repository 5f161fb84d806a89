package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"orgtalk/apps/call-service/dao"
	"orgtalk/apps/call-service/handler"
	"orgtalk/apps/call-service/model"
	"orgtalk/apps/call-service/service"
	"orgtalk/pkg/middleware"
	"orgtalk/pkg/server"
	"orgtalk/pkg/snowflake"
	"orgtalk/pkg/telemetry"
)

func main() {
	serviceName := "call-service"

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
	app := server.NewApplication(serviceName, server.WithPostgres())
	app.EnableHTTP()

	// 自动迁移数据库表结构
	postgreSQL := app.GetPostgreSQL()
	if err := postgreSQL.AutoMigrate(
		&model.Call{},
		&model.CallParticipant{},
	); err != nil {
		panic("Failed to migrate database: " + err.Error())
	}

	cfg := app.GetConfig()
	ringTimeout := time.Duration(cfg.Call.RingTimeoutSec) * time.Second

	// 初始化DAO和Service层
	callDAO := dao.NewCallDAO(postgreSQL)
	svc := service.NewService(callDAO, app.GetKafkaProducer(), app.GetLogger(), ringTimeout)

	// 启动超时通话清理器
	reaper := service.NewReaper(callDAO, svc, app.GetRedisClient(), app.GetLogger(),
		time.Duration(cfg.Call.ReaperIntervalSec)*time.Second,
		time.Duration(cfg.Call.MaxLifetimeSec)*time.Second,
		time.Duration(cfg.Call.ReaperBackoffSec)*time.Second)
	go reaper.Run(context.Background())

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
	return 4
}
