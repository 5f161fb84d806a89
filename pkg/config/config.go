package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config 应用配置
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Call     CallConfig     `yaml:"call"`
	PTT      PTTConfig      `yaml:"ptt"`
	Typing   TypingConfig   `yaml:"typing"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	JWTSecret string `yaml:"jwt_secret"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

// HTTPConfig HTTP服务配置
type HTTPConfig struct {
	Network string `yaml:"network"`
	Addr    string `yaml:"addr"`
	Timeout string `yaml:"timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
}

// MongoDBConfig MongoDB配置
type MongoDBConfig struct {
	URI    string `yaml:"uri"`
	DBName string `yaml:"db_name"`
}

// PostgreSQLConfig PostgreSQL配置
type PostgreSQLConfig struct {
	DSN    string `yaml:"dsn"`
	DBName string `yaml:"db_name"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

// GatewayConfig IM网关配置
type GatewayConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// InstanceConfig 实例配置
type InstanceConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HeartbeatConfig 心跳配置
type HeartbeatConfig struct {
	Interval int `yaml:"interval"` // 心跳间隔（秒）
	Timeout  int `yaml:"timeout"`  // 超时时间（秒）
}

// CallConfig 通话配置
type CallConfig struct {
	RingTimeoutSec    int `yaml:"ring_timeout_sec"`    // 振铃超时，超时转未接
	ReaperIntervalSec int `yaml:"reaper_interval_sec"` // 清理器扫描间隔
	MaxLifetimeSec    int `yaml:"max_lifetime_sec"`    // 非终态通话最大存活时间
	ReaperBackoffSec  int `yaml:"reaper_backoff_sec"`  // 扫描失败后的退避时间
}

// PTTConfig 对讲配置
type PTTConfig struct {
	MinUtteranceMs int `yaml:"min_utterance_ms"` // 低于该时长按取消处理
	LivenessSec    int `yaml:"liveness_sec"`     // 会话保活TTL，到期按隐式取消处理
}

// TypingConfig 输入状态配置
type TypingConfig struct {
	WindowSec  int `yaml:"window_sec"`  // typing信号有效窗口
	RefreshSec int `yaml:"refresh_sec"` // 客户端续报间隔
}

// LoadConfig 从环境变量加载配置
func LoadConfig(serviceName string) *Config {

	var defaultHTTPPort string

	// 根据服务名称设置默认端口
	switch serviceName {
	case "message-service":
		defaultHTTPPort = "21001"
	case "conversation-service":
		defaultHTTPPort = "21002"
	case "presence-service":
		defaultHTTPPort = "21003"
	case "call-service":
		defaultHTTPPort = "21004"
	case "ptt-service":
		defaultHTTPPort = "21005"
	case "im-gateway-service":
		defaultHTTPPort = "21006"
	case "api-gateway-service":
		defaultHTTPPort = "21000"
	default:
		panic(fmt.Sprintf("未知的服务名称: %s，支持的服务名称: message-service, conversation-service, presence-service, call-service, ptt-service, im-gateway-service, api-gateway-service", serviceName))
	}

	httpPort := getEnvOrDefault("HTTP_PORT", defaultHTTPPort)

	return &Config{
		App: AppConfig{
			Name:      serviceName,
			Version:   getEnvOrDefault("APP_VERSION", "1.0.0"),
			JWTSecret: getEnvOrDefault("JWT_SECRET", "orgtalk"),
		},
		Server: ServerConfig{
			HTTP: HTTPConfig{
				Network: "tcp",
				Addr:    ":" + httpPort,
				Timeout: "30s",
			},
		},
		Database: DatabaseConfig{
			MongoDB: MongoDBConfig{
				URI:    getEnvOrDefault("MONGODB_URI", "mongodb://localhost:27017"),
				DBName: getEnvOrDefault("MONGODB_DB", serviceName+"DB"),
			},
			PostgreSQL: PostgreSQLConfig{
				DSN:    getEnvOrDefault("POSTGRESQL_DSN", "host=localhost user=postgres password=postgres dbname="+serviceName+"DB port=5432 sslmode=disable"),
				DBName: getEnvOrDefault("POSTGRESQL_DB", serviceName+"DB"),
			},
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvIntOrDefault("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnvOrDefault("KAFKA_BROKERS", "localhost:9092")},
			GroupID: getEnvOrDefault("KAFKA_GROUP_ID", serviceName+"-group"),
		},
		Gateway: GatewayConfig{
			Instance: InstanceConfig{
				Host: getEnvOrDefault("INSTANCE_HOST", "localhost"),
				Port: getEnvIntOrDefault("INSTANCE_PORT", 21006),
			},
			Heartbeat: HeartbeatConfig{
				Interval: getEnvIntOrDefault("HEARTBEAT_INTERVAL", 10),
				Timeout:  getEnvIntOrDefault("HEARTBEAT_TIMEOUT", 30),
			},
		},
		Call: CallConfig{
			RingTimeoutSec:    getEnvIntOrDefault("CALL_RING_TIMEOUT", 45),
			ReaperIntervalSec: getEnvIntOrDefault("CALL_REAPER_INTERVAL", 300),
			MaxLifetimeSec:    getEnvIntOrDefault("CALL_MAX_LIFETIME", 3600),
			ReaperBackoffSec:  getEnvIntOrDefault("CALL_REAPER_BACKOFF", 60),
		},
		PTT: PTTConfig{
			MinUtteranceMs: getEnvIntOrDefault("PTT_MIN_UTTERANCE_MS", 500),
			LivenessSec:    getEnvIntOrDefault("PTT_LIVENESS_SEC", 30),
		},
		Typing: TypingConfig{
			WindowSec:  getEnvIntOrDefault("TYPING_WINDOW_SEC", 3),
			RefreshSec: getEnvIntOrDefault("TYPING_REFRESH_SEC", 2),
		},
	}
}

// getEnvOrDefault 获取环境变量或默认值
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault 获取环境变量整数值或默认值
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
