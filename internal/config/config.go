package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 服务配置
type Config struct {
	// 运行环境（development / production）
	Env string
	// HTTP 服务端口
	HTTPPort string
	// 最大并发数（同时运行的导入流水线）
	MaxConcurrent int
	// 请求超时时间
	RequestTimeout time.Duration
	// 连接池大小
	MaxIdleConns int
	// 每个主机的最大连接数
	MaxConnsPerHost int
	// User-Agent
	UserAgent string
	// Redis URL（为空时使用内存存储，不启动队列消费者）
	RedisURL string
	// 工作区过期时间
	WorkspaceTTL time.Duration
	// 单次输入 HTML 的最大字节数
	MaxHTMLBytes int
	// 远程抓取速率（每秒请求数）
	FetchRatePerSec int
	// 允许的 CORS 来源
	CORSOrigins []string
	// 队列消费并发数
	QueueConcurrency int
	// 是否启用 CycleTLS（关闭时只用标准客户端）
	EnableCycleTLS bool
	// 是否开放 /fetch 等远程抓取接口
	EnableFetch bool
	// 是否允许抓取回环、内网和链路本地地址（仅用于本地调试）
	FetchAllowPrivate bool
}

// Load 加载 .env（如果存在）后读取环境变量
func Load() *Config {
	// .env 只是本地开发的便利，缺失不是错误
	_ = godotenv.Load()
	return DefaultConfig()
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Env:              getEnv("APP_ENV", "production"),
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		MaxConcurrent:    getEnvInt("MAX_CONCURRENT", 100),
		RequestTimeout:   time.Duration(getEnvInt("REQUEST_TIMEOUT_MS", 15000)) * time.Millisecond,
		MaxIdleConns:     getEnvInt("MAX_IDLE_CONNS", 100),
		MaxConnsPerHost:  getEnvInt("MAX_CONNS_PER_HOST", 10),
		UserAgent:        getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		RedisURL:         getEnv("REDIS_URL", ""),
		WorkspaceTTL:     time.Duration(getEnvInt("WORKSPACE_TTL_MINUTES", 24*60)) * time.Minute,
		MaxHTMLBytes:     getEnvInt("MAX_HTML_BYTES", 512*1024),
		FetchRatePerSec:  getEnvInt("FETCH_RATE_PER_SEC", 5),
		CORSOrigins:      getEnvList("CORS_ORIGINS", []string{"*"}),
		QueueConcurrency: getEnvInt("QUEUE_CONCURRENCY", 10),
		EnableCycleTLS:   getEnvBool("ENABLE_CYCLETLS", true),
		EnableFetch:      getEnvBool("ENABLE_FETCH", false),

		FetchAllowPrivate: getEnvBool("FETCH_ALLOW_PRIVATE", false),
	}
}

// IsDevelopment 是否为开发环境
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList 读取逗号分隔的列表
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
