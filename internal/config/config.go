// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/aristath/foresight/internal/domain"
)

// Config holds application configuration
type Config struct {
	DataDir   string `validate:"required"` // Base directory for working copies and the embedded database (always absolute)
	Port      int    `validate:"min=1,max=65535"`
	LogLevel  string `validate:"oneof=trace debug info warn warning error"`
	LogPretty bool
	DevMode   bool // Disables response compression

	Symbols map[domain.Market][]string

	TrainingSchedule string `validate:"required"`
	RefreshSchedule  string // empty disables the stand-alone refresh job
	ScrapeSchedule   string

	PredictionTTL time.Duration `validate:"gt=0"`
	LookBack      int           `validate:"min=1"`
	TimeSteps     int           `validate:"min=1,gtefield=LookBack"`
	TrainSplit    float64       `validate:"gt=0,lt=1"`
	ScrapeMonths  int           `validate:"min=1"`

	Blob     BlobConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Telegram TelegramConfig
	Twilio   TwilioConfig
	Kafka    KafkaConfig
	NepseURL string
}

// BlobConfig selects and configures the model artifact store
type BlobConfig struct {
	Backend         string `validate:"oneof=s3 redis memory"`
	Bucket          string `validate:"required_if=Backend s3"`
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// CacheConfig selects the prediction cache backend
type CacheConfig struct {
	Backend string `validate:"oneof=redis memory sql"`
}

// RedisConfig configures the shared redis client
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"min=0"`
}

// DatabaseConfig configures the durable tabular store
type DatabaseConfig struct {
	Driver string `validate:"oneof=sqlite postgres"`
	DSN    string `validate:"required"`
}

// TelegramConfig configures the Telegram notification sink
type TelegramConfig struct {
	BotToken string
	BaseURL  string
}

// TwilioConfig configures the WhatsApp/SMS notification sink
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
}

// KafkaConfig configures the Kafka request listener and reply sink
type KafkaConfig struct {
	Brokers      []string
	RequestTopic string
	ReplyTopic   string
	GroupID      string
}

// Enabled reports whether the Telegram sink has credentials
func (c TelegramConfig) Enabled() bool { return c.BotToken != "" }

// Enabled reports whether the Twilio sink has credentials
func (c TwilioConfig) Enabled() bool { return c.AccountSID != "" && c.AuthToken != "" }

// Enabled reports whether Kafka is configured
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FORESIGHT_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		Port:      getEnvAsInt("FORESIGHT_PORT", 8000),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty: getEnvAsBool("LOG_PRETTY", true),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		Symbols: map[domain.Market][]string{
			domain.MarketNAS: getEnvAsList("NAS_SYMBOLS", []string{"NVDA", "MSFT", "AAPL", "AMZN", "TSLA"}),
			domain.MarketNPS: getEnvAsList("NPS_SYMBOLS", []string{"NABIL", "CIT", "GBIME", "EBL", "HIDCL"}),
		},
		TrainingSchedule: getEnv("TRAINING_SCHEDULE", "0 0 11 * * MON"),
		RefreshSchedule:  getEnv("REFRESH_SCHEDULE", ""),
		ScrapeSchedule:   getEnv("SCRAPE_SCHEDULE", "0 0 11 * * FRI"),
		PredictionTTL:    time.Duration(getEnvAsInt("PREDICTION_TTL_SECONDS", 43200)) * time.Second,
		LookBack:         getEnvAsInt("LOOK_BACK", 15),
		TimeSteps:        getEnvAsInt("TIME_STEPS", 80),
		TrainSplit:       getEnvAsFloat("TRAIN_SPLIT", 0.7),
		ScrapeMonths:     getEnvAsInt("SCRAPE_MONTHS", 6),
		Blob: BlobConfig{
			Backend:         strings.ToLower(getEnv("BLOB_BACKEND", "redis")),
			Bucket:          getEnv("S3_BUCKET", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "auto"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("S3_PREFIX", "models/"),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(getEnv("CACHE_BACKEND", "redis")),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			DSN:    getEnv("DB_DSN", filepath.Join(absDataDir, "foresight.db")),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			BaseURL:  getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org"),
		},
		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			From:       getEnv("TWILIO_FROM", ""),
			BaseURL:    getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvAsList("KAFKA_BROKERS", nil),
			RequestTopic: getEnv("KAFKA_REQUEST_TOPIC", "prediction-requests"),
			ReplyTopic:   getEnv("KAFKA_REPLY_TOPIC", "prediction-replies"),
			GroupID:      getEnv("KAFKA_GROUP_ID", "foresight"),
		},
		NepseURL: getEnv("NEPSE_BASE_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PricesDir holds the CSV working copies written by the scrape job
func (c *Config) PricesDir() string {
	return filepath.Join(c.DataDir, "prices")
}

// ModelsDir holds the local model working copies
func (c *Config) ModelsDir() string {
	return filepath.Join(c.DataDir, "models")
}

// Universe builds the ordered instrument set from the configured symbol lists
func (c *Config) Universe() (*domain.Universe, error) {
	return domain.NewUniverse(c.Symbols)
}

var validate = validator.New()

// Validate checks field constraints, the instrument universe and trigger specs
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.Universe(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"TRAINING_SCHEDULE": c.TrainingSchedule,
		"REFRESH_SCHEDULE":  c.RefreshSchedule,
		"SCRAPE_SCHEDULE":   c.ScrapeSchedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid configuration: %s %q: %w", name, spec, err)
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
