package config

import (
	"time"

	"github.com/spf13/viper"
)

// The gateway runs in EKS with its settings injected as environment
// variables on the pod. AWS config and the queue URLs are handled the same
// way; the defaults below target the local docker-compose stack.

type Config struct {
	DBHost               string        `mapstructure:"DB_HOST"`
	DBPort               string        `mapstructure:"DB_PORT"`
	DBUser               string        `mapstructure:"DB_USER"`
	DBPassword           string        `mapstructure:"DB_PASSWORD"`
	DBName               string        `mapstructure:"DB_NAME"`
	ServerPort           string        `mapstructure:"SERVER_PORT"`
	AWSRegion            string        `mapstructure:"AWS_REGION"`
	InvalidationQueueURL string        `mapstructure:"INVALIDATION_SQS_QUEUE_URL"`
	NotifyQueueURL       string        `mapstructure:"NOTIFY_SQS_QUEUE_URL"`
	AWSEndpoint          string        `mapstructure:"AWS_ENDPOINT"`
	HRAPIBaseURL         string        `mapstructure:"HR_API_BASE_URL"`
	HRAPIMaxRetries      uint          `mapstructure:"HR_API_MAX_RETRIES"`
	SESSender            string        `mapstructure:"SES_SENDER"`
	OTLPEndpoint         string        `mapstructure:"OTLP_ENDPOINT"`
	CacheStaleAfter      time.Duration `mapstructure:"CACHE_STALE_AFTER"`
	CacheEvictAfter      time.Duration `mapstructure:"CACHE_EVICT_AFTER"`
	IsLocalDev           bool          `mapstructure:"IS_LOCAL_DEV"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("DB_HOST", "db")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "attendance_db")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("AWS_REGION", "us-east-1") // Default region for AWS services
	viper.SetDefault("INVALIDATION_SQS_QUEUE_URL", "http://localstack:4566/000000000000/invalidation-queue")
	viper.SetDefault("NOTIFY_SQS_QUEUE_URL", "http://localstack:4566/000000000000/notify-queue")
	viper.SetDefault("AWS_ENDPOINT", "http://localstack:4566")
	viper.SetDefault("HR_API_BASE_URL", "http://localhost:8081/api")
	viper.SetDefault("HR_API_MAX_RETRIES", 3)
	viper.SetDefault("SES_SENDER", "attendance@gateway.example")
	viper.SetDefault("OTLP_ENDPOINT", "jaeger:4317")
	viper.SetDefault("CACHE_STALE_AFTER", "30s")
	viper.SetDefault("CACHE_EVICT_AFTER", "15m")
	viper.SetDefault("IS_LOCAL_DEV", false)

	// Read in environment variables that match the keys.
	viper.AutomaticEnv()

	err = viper.Unmarshal(&config)
	return
}
