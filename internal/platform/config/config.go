package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Render queue tuning. The retry ceiling and timeouts are deliberately
	// configuration, not constants.
	RenderMaxAttempts     int
	RenderJobTimeout      time.Duration
	RenderPassMaxJobs     int
	RenderPassConcurrency int
	RenderReclaimAfter    time.Duration
	RenderCommand         string

	WorkerCronSpec    string
	ReclaimerCronSpec string
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:       getEnv("API_PORT", "8080"),
		JWTKey:        []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:        time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "user"),
		DBPassword:    getEnv("DB_PASSWORD", "password"),
		DBName:        getEnv("DB_NAME", "quotereel_db"),
		DBSslMode:     getEnv("DB_SSLMODE", "disable"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		CacheTTL:      time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,

		RenderMaxAttempts:     getEnvAsInt("RENDER_MAX_ATTEMPTS", 3),
		RenderJobTimeout:      time.Duration(getEnvAsInt("RENDER_JOB_TIMEOUT_SECONDS", 180)) * time.Second,
		RenderPassMaxJobs:     getEnvAsInt("RENDER_PASS_MAX_JOBS", 10),
		RenderPassConcurrency: getEnvAsInt("RENDER_PASS_CONCURRENCY", 2),
		RenderReclaimAfter:    time.Duration(getEnvAsInt("RENDER_RECLAIM_AFTER_SECONDS", 900)) * time.Second,
		RenderCommand:         getEnv("RENDER_COMMAND", ""),

		WorkerCronSpec:    getEnv("WORKER_CRON_SPEC", "@every 1m"),
		ReclaimerCronSpec: getEnv("RECLAIMER_CRON_SPEC", "@every 5m"),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
