package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BotToken  string
	AdminID   int64
	ChannelID string

	DBUser     string
	DBPassword string
	DBName     string
	DBHost     string
	DBPort     string
	DBSSLMode  string

	AdsFile string

	RedisAddr     string
	RedisPassword string
	SubmitLimit   int
	SubmitWindow  time.Duration

	MetricsAddr      string
	SendTimeout      time.Duration
	BroadcastWorkers int

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	// .env is optional and never overrides variables already set.
	_ = godotenv.Load()

	cfg := &Config{
		BotToken:      os.Getenv("BOT_TOKEN"),
		ChannelID:     os.Getenv("CHANNEL_ID"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		DBHost:        getString("DB_HOST", "localhost"),
		DBPort:        getString("DB_PORT", "5432"),
		DBSSLMode:     getString("DB_SSLMODE", "disable"),
		AdsFile:       getString("ADS_FILE", "ads.json"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		LogLevel:      getString("LOG_LEVEL", "info"),
		LogFormat:     os.Getenv("LOG_FORMAT"),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("config.Load: BOT_TOKEN is required")
	}

	var err error

	adminID := os.Getenv("ADMIN_ID")
	if adminID == "" {
		return nil, fmt.Errorf("config.Load: ADMIN_ID is required")
	}

	cfg.AdminID, err = strconv.ParseInt(adminID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("config.Load: ADMIN_ID must be a chat id: %w", err)
	}

	if cfg.ChannelID == "" {
		return nil, fmt.Errorf("config.Load: CHANNEL_ID is required")
	}

	if cfg.DBUser == "" || cfg.DBPassword == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("config.Load: DB_USER, DB_PASSWORD, DB_NAME are required")
	}

	if cfg.SubmitLimit, err = getInt("SUBMIT_LIMIT", 5); err != nil {
		return nil, err
	}

	if cfg.BroadcastWorkers, err = getInt("BROADCAST_WORKERS", 8); err != nil {
		return nil, err
	}

	if cfg.SubmitWindow, err = getDuration("SUBMIT_WINDOW", time.Hour); err != nil {
		return nil, err
	}

	if cfg.SendTimeout, err = getDuration("SEND_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config.Load: %s must be a positive integer, got %q", key, v)
	}

	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config.Load: %s must be a positive duration, got %q", key, v)
	}

	return d, nil
}
