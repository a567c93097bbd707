package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Cfg 是一个全局变量，用于存储所有应用程序的配置
var Cfg *Config

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	WebAuthn WebAuthnConfig `mapstructure:"webauthn"`
	Session  SessionConfig  `mapstructure:"session"`
	Database DatabaseConfig `mapstructure:"database"`
	Stream   StreamConfig   `mapstructure:"stream"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode    string     `mapstructure:"mode"` // "debug" 或 "release"
	Address string     `mapstructure:"address"`
	Cors    CorsConfig `mapstructure:"cors"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// WebAuthnConfig 定义了WebAuthn依赖方(Relying Party)的身份配置
type WebAuthnConfig struct {
	RPID          string   `mapstructure:"rpId"`
	RPDisplayName string   `mapstructure:"rpDisplayName"`
	RPOrigins     []string `mapstructure:"rpOrigins"`
}

// SessionConfig 定义了会话令牌和cookie的配置
type SessionConfig struct {
	TTLHours     int    `mapstructure:"ttlHours"`
	CookieName   string `mapstructure:"cookieName"`
	CookieSecure bool   `mapstructure:"cookieSecure"`
}

// DatabaseConfig 定义了数据库和缓存相关的配置
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"` // "sqlite" 或 "postgres"
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StreamConfig 定义了SSE实时推送的配置
type StreamConfig struct {
	KeepAliveSeconds int `mapstructure:"keepAliveSeconds"`
	SubscriberBuffer int `mapstructure:"subscriberBuffer"`
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 它会在指定的路径中查找名为 config.yaml 的文件
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// 可以添加多个路径，Viper会按顺序查找
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// 允许通过环境变量覆盖配置，例如 SERVER_ADDRESS=:9000
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 合理的默认值，让服务在没有配置文件时也能以开发模式启动
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("webauthn.rpId", "localhost")
	v.SetDefault("webauthn.rpDisplayName", "Live Polls")
	v.SetDefault("webauthn.rpOrigins", []string{"http://localhost:3000"})
	v.SetDefault("session.ttlHours", 24)
	v.SetDefault("session.cookieName", "poll_session")
	v.SetDefault("session.cookieSecure", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "polls.db")
	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("stream.keepAliveSeconds", 15)
	v.SetDefault("stream.subscriberBuffer", 16)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件缺失不是致命错误，全部使用默认值和环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	Cfg = &cfg
	return Cfg, nil
}
