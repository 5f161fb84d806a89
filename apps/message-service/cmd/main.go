package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"

	"orgtalk/apps/message-service/consumer"
	"orgtalk/apps/message-service/dao"
	"orgtalk/apps/message-service/handler"
	"orgtalk/apps/message-service/service"
	"orgtalk/pkg/middleware"
	"orgtalk/pkg/server"
	"orgtalk/pkg/snowflake"
	"orgtalk/pkg/telemetry"
)

func main() {
	serviceName := "message-service"

	// 初始化OpenTelemetry
	otelConfig := telemetry.DefaultConfig(serviceName)
	if err := telemetry.InitGlobal(otelConfig); err != nil {
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
	messageDAO := dao.NewMongoDAO(app.GetMongoDB())
	if err := messageDAO.EnsureIndexes(context.Background()); err != nil {
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	// 初始化归档索引（viper文件配置，找不到配置文件用默认值）
	searchCfg, err := initSearchConfig()
	if err != nil {
		log.Fatalf("Failed to load search config: %v", err)
	}
	esClient, err := initElasticSearch(searchCfg)
	if err != nil {
		log.Fatalf("Failed to initialize ElasticSearch: %v", err)
	}
	searchDAO := dao.NewSearchDAO(esClient)

	// 初始化Service层
	svc := service.NewService(messageDAO, app.GetKafkaProducer(), app.GetLogger())

	// 启动Kafka消费者
	ctx := context.Background()
	cfg := app.GetConfig()

	storageConsumer := consumer.NewStorageConsumer(svc)
	go func() {
		log.Println("启动存储消费者...")
		if err := storageConsumer.Start(ctx, cfg.Kafka.Brokers); err != nil {
			log.Fatalf("Failed to start storage consumer: %v", err)
		}
	}()

	indexConsumer := consumer.NewIndexConsumer(searchDAO)
	go func() {
		log.Println("启动归档索引消费者...")
		if err := indexConsumer.Start(ctx, cfg.Kafka.Brokers); err != nil {
			log.Fatalf("Failed to start index consumer: %v", err)
		}
	}()

	// 注册HTTP路由
	otelMW := middleware.NewOTelMiddleware(serviceName, app.GetLogger())
	app.RegisterHTTPRoutes(func(engine *gin.Engine) {
		engine.Use(otelMW.GinMiddleware())

		httpHandler := handler.NewHTTPHandler(svc, searchDAO, app.GetLogger())
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
	return 1
}

// initSearchConfig 加载归档检索配置
func initSearchConfig() (*viper.Viper, error) {
	cfg := viper.New()
	cfg.SetConfigName("config")
	cfg.SetConfigType("yaml")
	cfg.AddConfigPath(".")
	cfg.AddConfigPath("..")
	cfg.AddConfigPath("../..")
	cfg.AutomaticEnv()

	cfg.SetDefault("search.elasticsearch.addresses", []string{"http://localhost:9200"})

	if err := cfg.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found, using default values")
		} else {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	}
	return cfg, nil
}

// initElasticSearch 初始化ElasticSearch客户端
func initElasticSearch(cfg *viper.Viper) (*elasticsearch.Client, error) {
	addresses := cfg.GetStringSlice("search.elasticsearch.addresses")
	if len(addresses) == 0 {
		addresses = []string{"http://localhost:9200"}
	}

	esConfig := elasticsearch.Config{
		Addresses: addresses,
		Username:  cfg.GetString("search.elasticsearch.username"),
		Password:  cfg.GetString("search.elasticsearch.password"),
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create ElasticSearch client: %v", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ElasticSearch: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("ElasticSearch connection error: %s", res.String())
	}
	return client, nil
}
