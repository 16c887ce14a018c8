package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	PushChannelLog      = "log"
	PushChannelTelegram = "telegram"
	PushChannelSNS      = "sns"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	StoreDriver string
	DatabaseURL string
	AutoMigrate bool
	LogLevel    string
	Environment string

	CronSpecReminderCheck string // How often due reminders are scanned
	DueBatchLimit         int
	DispatchTimeout       time.Duration // Per notification
	CycleTimeout          time.Duration // Whole cycle

	PushChannel   string
	TelegramToken string
	SNSTopicARN   string
	AWSRegion     string
	AppBaseURL    string // Prefix for client deep links

	RedisAddr     string // Empty disables the cross-replica cycle lock
	RedisPassword string
	RedisDB       int
	CycleLockTTL  time.Duration

	MetricsAddr string // Empty disables the /metrics listener
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres))
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.AutoMigrate, err = getBool("AUTO_MIGRATE", false); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))

	cfg.CronSpecReminderCheck = getEnv("CRON_SPEC_REMINDER_CHECK", "* * * * *") // Default: every minute

	if cfg.DueBatchLimit, err = getInt("DUE_BATCH_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.DueBatchLimit <= 0 {
		return nil, fmt.Errorf("DUE_BATCH_LIMIT must be positive, got %d", cfg.DueBatchLimit)
	}
	if cfg.DispatchTimeout, err = getDuration("DISPATCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CycleTimeout, err = getDuration("CYCLE_TIMEOUT", 50*time.Second); err != nil {
		return nil, err
	}

	cfg.PushChannel = strings.ToLower(getEnv("PUSH_CHANNEL", PushChannelLog))
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.SNSTopicARN = os.Getenv("SNS_TOPIC_ARN")
	cfg.AWSRegion = getEnv("AWS_REGION", "us-east-1")
	switch cfg.PushChannel {
	case PushChannelLog:
	case PushChannelTelegram:
		if cfg.TelegramToken == "" {
			return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
		}
	case PushChannelSNS:
		if cfg.SNSTopicARN == "" {
			return nil, fmt.Errorf("SNS_TOPIC_ARN is not set")
		}
	default:
		return nil, fmt.Errorf("invalid PUSH_CHANNEL %q", cfg.PushChannel)
	}
	cfg.AppBaseURL = os.Getenv("APP_BASE_URL")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.CycleLockTTL, err = getDuration("CYCLE_LOCK_TTL", 2*time.Minute); err != nil {
		return nil, err
	}
	// The lease must outlive the longest cycle or a second replica can start one.
	if cfg.RedisAddr != "" && cfg.CycleLockTTL <= cfg.CycleTimeout {
		return nil, fmt.Errorf("CYCLE_LOCK_TTL (%s) must be longer than CYCLE_TIMEOUT (%s)", cfg.CycleLockTTL, cfg.CycleTimeout)
	}

	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
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
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
