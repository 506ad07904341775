package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	AI         AIConfig         `mapstructure:"ai"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Enterprise EnterpriseConfig `mapstructure:"enterprise"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Push       PushConfig       `mapstructure:"push"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	GinMode      string `mapstructure:"gin_mode"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	TokenExpiryDays int    `mapstructure:"token_expiry_days"`
}

// ScheduleConfig holds construction schedule configuration
type ScheduleConfig struct {
	// StageDurations maps canonical stage keys (S00..S05) to default
	// duration in days
	StageDurations           map[string]int `mapstructure:"stage_durations"`
	ReminderDefaultDaysAhead int            `mapstructure:"reminder_default_days_ahead"`
}

// AIConfig holds AI analyzer configuration
type AIConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	WorkerConcurrency int    `mapstructure:"worker_concurrency"`
	QueueSize         int    `mapstructure:"queue_size"`
	// Risk score thresholds for severity mapping
	RiskScoreMid  int `mapstructure:"risk_score_mid"`
	RiskScoreHigh int `mapstructure:"risk_score_high"`
}

// OCRConfig holds OCR service configuration
type OCRConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EnterpriseConfig holds the company-risk enrichment service configuration
type EnterpriseConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StorageConfig holds blob storage configuration
type StorageConfig struct {
	Provider         string   `mapstructure:"provider"` // "local" or "s3"
	LocalBasePath    string   `mapstructure:"local_base_path"`
	LocalBaseURL     string   `mapstructure:"local_base_url"`
	Bucket           string   `mapstructure:"bucket"`
	MaxUploadSize    int64    `mapstructure:"max_upload_size"`
	AllowedFileTypes []string `mapstructure:"allowed_file_types"`
	SignedURLTTL     int      `mapstructure:"signed_url_ttl"` // seconds

	AWS AWSConfig `mapstructure:"aws"`
}

// AWSConfig holds S3 provider configuration
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// PaymentConfig holds payment gateway configuration and per-order-type prices
type PaymentConfig struct {
	MerchantID string `mapstructure:"merchant_id"`
	APIKey     string `mapstructure:"api_key"`
	NotifyURL  string `mapstructure:"notify_url"`
	// Prices are in cents, keyed by order type
	Prices map[string]int64 `mapstructure:"prices"`
}

// PushConfig holds push notification (FCM) configuration
type PushConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	FCMProjectID   string `mapstructure:"fcm_project_id"`
	FCMCredentials string `mapstructure:"fcm_credentials"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and environment
// variables prefixed with RENO_
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/renovation-service")

	v.SetEnvPrefix("RENO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; env vars and defaults apply
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.gin_mode", "debug")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "renovation_db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")

	v.SetDefault("auth.jwt_secret", "dev-secret-change-me")
	v.SetDefault("auth.token_expiry_days", 30)

	v.SetDefault("schedule.stage_durations", map[string]int{
		"S00": 7, "S01": 14, "S02": 10, "S03": 10, "S04": 7, "S05": 7,
	})
	v.SetDefault("schedule.reminder_default_days_ahead", 3)

	v.SetDefault("ai.base_url", "http://localhost:8200")
	v.SetDefault("ai.timeout_seconds", 120)
	v.SetDefault("ai.worker_concurrency", 8)
	v.SetDefault("ai.queue_size", 256)
	v.SetDefault("ai.risk_score_mid", 31)
	v.SetDefault("ai.risk_score_high", 61)

	v.SetDefault("ocr.base_url", "http://localhost:8201")
	v.SetDefault("ocr.timeout_seconds", 60)

	v.SetDefault("enterprise.base_url", "http://localhost:8202")
	v.SetDefault("enterprise.timeout_seconds", 10)

	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_base_path", "./uploads")
	v.SetDefault("storage.local_base_url", "http://localhost:8090/files")
	v.SetDefault("storage.bucket", "renovation-uploads")
	v.SetDefault("storage.max_upload_size", 20*1024*1024)
	v.SetDefault("storage.allowed_file_types", []string{".jpg", ".jpeg", ".png", ".webp", ".pdf"})
	v.SetDefault("storage.signed_url_ttl", 3600)

	v.SetDefault("payment.prices", map[string]int64{
		"report_single":       990,
		"report_package":      2990,
		"supervision_single":  4990,
		"supervision_package": 19900,
		"member_month":        1900,
		"member_season":       4900,
		"member_year":         14900,
	})

	v.SetDefault("push.enabled", false)
	v.SetDefault("push.timeout_seconds", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
