package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type Config struct {
	Environment string      `json:"environment"`
	ServerPort  string      `json:"server_port"`
	Redis       RedisConfig `json:"redis"`

	// Secrets
	JWTSecret     string `json:"-"`
	EncryptionKey string `json:"-"`

	// Public base URL used to build tracking pixel/click links
	TrackingBaseURL string `json:"tracking_base_url"`

	// Engine tuning
	SendTimeout      time.Duration `json:"send_timeout"`
	IMAPTimeout      time.Duration `json:"imap_timeout"`
	DispatchInterval time.Duration `json:"dispatch_interval"`
	ReplyInterval    time.Duration `json:"reply_interval"`

	SentryDSN string `json:"-"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "8000"),
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWTSecret:        getEnv("JWT_SECRET", ""),
		EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
		TrackingBaseURL:  getEnv("TRACKING_BASE_URL", "http://localhost:8000"),
		SendTimeout:      getEnvAsDuration("SEND_TIMEOUT", 30*time.Second),
		IMAPTimeout:      getEnvAsDuration("IMAP_TIMEOUT", 30*time.Second),
		DispatchInterval: getEnvAsDuration("DISPATCH_INTERVAL", 15*time.Minute),
		ReplyInterval:    getEnvAsDuration("REPLY_CHECK_INTERVAL", 5*time.Minute),
		SentryDSN:        getEnv("SENTRY_DSN", ""),
	}

	// Validate required configurations
	if AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(AppConfig.EncryptionKey) != 16 && len(AppConfig.EncryptionKey) != 24 && len(AppConfig.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be 16, 24 or 32 bytes, got %d", len(AppConfig.EncryptionKey))
	}

	logConfig()
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func logConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Redis: %s/%d", AppConfig.Redis.Address, AppConfig.Redis.DB)
	log.Printf("Tracking base URL: %s", AppConfig.TrackingBaseURL)
	log.Printf("Sentry enabled: %t", AppConfig.SentryDSN != "")
}
