package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// AppConfig holds everything read from the environment at startup.
type AppConfig struct {
	Port           string
	LogLevel       string
	Development    bool
	AllowedOrigins string

	PrimaryDB   DatabaseConfig
	SecondaryDB DatabaseConfig

	RedisAddress  string
	RedisPassword string

	// StatusCacheTTL of zero means the status catalog is re-read on every load.
	StatusCacheTTL time.Duration
	// SummaryCacheTTL bounds how long a charges summary is served from redis.
	SummaryCacheTTL time.Duration

	IngestionFeed         string // "redis" or "poll"
	IngestionPollInterval time.Duration
	IngestionStallAfter   time.Duration
	StallSweepCron        string
	StallRepairAfter      time.Duration
	UploadStoragePath     string
	WorkerConcurrency     int
}

// DatabaseConfig is one postgres connection; the prefix selects PRIMARY_DB_* or SECONDARY_DB_*.
type DatabaseConfig struct {
	Name     string
	Host     string
	User     string
	Password string
	DBName   string
	Port     string
	TimeZone string
}

func GetEnv(key string) string {
	return os.Getenv(key)
}

func GetEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := GetEnv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		Logger.Warn("Invalid duration in environment, using default",
			zap.String("key", key),
			zap.String("value", raw),
			zap.Duration("default", def))
		return def
	}
	return d
}

func getInt(key string, def int) int {
	raw := GetEnv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		Logger.Warn("Invalid integer in environment, using default",
			zap.String("key", key),
			zap.String("value", raw),
			zap.Int("default", def))
		return def
	}
	return n
}

func loadDatabaseConfig(name, prefix string) DatabaseConfig {
	return DatabaseConfig{
		Name:     name,
		Host:     GetEnvOrDefault(prefix+"_HOST", "localhost"),
		User:     GetEnv(prefix + "_USER"),
		Password: GetEnv(prefix + "_PASSWORD"),
		DBName:   GetEnv(prefix + "_NAME"),
		Port:     GetEnvOrDefault(prefix+"_PORT", "5432"),
		TimeZone: GetEnvOrDefault(prefix+"_TIMEZONE", "UTC"),
	}
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *AppConfig {
	if err := godotenv.Load(".env"); err != nil {
		Logger.Warn("No .env file loaded, relying on process environment", zap.Error(err))
	}

	return &AppConfig{
		Port:           GetEnvOrDefault("PORT", "8080"),
		LogLevel:       GetEnvOrDefault("LOG_LEVEL", "info"),
		Development:    GetEnvOrDefault("APP_ENV", "development") == "development",
		AllowedOrigins: GetEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:5173"),

		PrimaryDB:   loadDatabaseConfig("primary", "PRIMARY_DB"),
		SecondaryDB: loadDatabaseConfig("secondary", "SECONDARY_DB"),

		RedisAddress:  GetEnvOrDefault("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD"),

		StatusCacheTTL:  getDuration("STATUS_CACHE_TTL", 0),
		SummaryCacheTTL: getDuration("SUMMARY_CACHE_TTL", 5*time.Minute),

		IngestionFeed:         GetEnvOrDefault("INGESTION_FEED", "redis"),
		IngestionPollInterval: getDuration("INGESTION_POLL_INTERVAL", 3*time.Second),
		IngestionStallAfter:   getDuration("INGESTION_STALL_AFTER", 2*time.Minute),
		StallSweepCron:        GetEnvOrDefault("STALL_SWEEP_CRON", "*/5 * * * *"),
		StallRepairAfter:      getDuration("STALL_REPAIR_AFTER", 15*time.Minute),
		UploadStoragePath:     GetEnvOrDefault("UPLOAD_STORAGE_PATH", "./uploads"),
		WorkerConcurrency:     getInt("WORKER_CONCURRENCY", 5),
	}
}
