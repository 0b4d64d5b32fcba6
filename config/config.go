package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	// HTTP
	Port           string
	AllowedOrigins []string

	// MySQL
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBLogLevel string // silent, error, warn, info

	// Redis配置
	RedisHost       string
	RedisPort       string
	RedisPassword   string
	RedisDB         int
	StatusCacheTTL  time.Duration // 状态快照在 Redis 中的过期时间
	StatusChannel   string        // 状态更新的 pub/sub 频道
	StatusCacheKey  string        // 最新状态快照的 key
	EnableRedisSync bool          // 是否把播出状态镜像到 Redis

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	EnableMinio    bool

	// 鉴权
	JWTSecret string
	JWTTTL    time.Duration

	// 调度器
	BroadcastQueueSize int           // 每个订阅者的队列长度
	MinTrackDuration   time.Duration // 时长为0的曲目至少播放多久
	BookkeepingTimeout time.Duration // 播放计数写入的超时时间
	CatalogReadTimeout time.Duration // 调度器读取曲库的超时时间
	AutoStart          bool          // 添加曲目后空闲状态下自动开播
	RandomSeed         int64         // 0 表示按时间取种子

	// 媒体处理
	FFmpegPath     string
	ImportDir      string // 曲目清单投递目录，为空则不启用
	MaxUploadBytes int64

	// 日志
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool accepts anything strconv.ParseBool does.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration 读取 time.ParseDuration 格式的环境变量，如 "30s"、"24h"
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env files.
func FromEnv() *Config {
	return &Config{
		Port:           getEnv("PORT", "5002"),
		AllowedOrigins: getEnvList("FRONTEND_URL", []string{"http://localhost:3000"}),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "onair"),
		DBLogLevel: getEnv("DB_LOG_LEVEL", "warn"),

		RedisHost:       getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:       getEnv("REDIS_PORT", "6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		StatusCacheTTL:  getEnvDuration("STATUS_CACHE_TTL", 24*time.Hour),
		StatusChannel:   getEnv("STATUS_CHANNEL", "radio:update"),
		StatusCacheKey:  getEnv("STATUS_CACHE_KEY", "radio:status"),
		EnableRedisSync: getEnvBool("ENABLE_REDIS_SYNC", true),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "onair"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		EnableMinio:    getEnvBool("ENABLE_MINIO", true),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		BroadcastQueueSize: getEnvInt("BROADCAST_QUEUE_SIZE", 16),
		MinTrackDuration:   getEnvDuration("MIN_TRACK_DURATION", time.Second),
		BookkeepingTimeout: getEnvDuration("BOOKKEEPING_TIMEOUT", 5*time.Second),
		CatalogReadTimeout: getEnvDuration("CATALOG_READ_TIMEOUT", 5*time.Second),
		AutoStart:          getEnvBool("AUTO_START", true),
		RandomSeed:         getEnvInt64("RANDOM_SEED", 0),

		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		ImportDir:      getEnv("IMPORT_DIR", ""),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 50<<20), // 50MB

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 30),
	}
}
