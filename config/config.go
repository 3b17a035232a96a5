package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	UPI      UPIConfig
	Admin    AdminConfig
	NATS     NATSConfig
	Email    EmailConfig
	Media    MediaConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string `env:"PORT" envDefault:"8080"`
	ReadTimeout        int    `env:"READ_TIMEOUT_SEC" envDefault:"30"`
	WriteTimeout       int    `env:"WRITE_TIMEOUT_SEC" envDefault:"120"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:9002"`
	// RunWorker starts the background job processor inside the API process.
	RunWorker bool `env:"RUN_WORKER" envDefault:"true"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL           string `env:"DATABASE_URL"` // if set, used as-is
	Host          string `env:"DB_HOST" envDefault:"localhost"`
	Port          string `env:"DB_PORT" envDefault:"5432"`
	User          string `env:"DB_USER" envDefault:"postgres"`
	Password      string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName        string `env:"DB_NAME" envDefault:"gloads"`
	SSLMode       string `env:"DB_SSLMODE" envDefault:"disable"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	ExpireHours int    `env:"JWT_EXPIRE_HOURS" envDefault:"72"`
}

// AWSConfig holds AWS credentials and the S3 bucket for ad videos.
type AWSConfig struct {
	Region               string `env:"AWS_REGION"`
	AccessKeyID          string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey      string `env:"AWS_SECRET_ACCESS_KEY"`
	VideosBucket         string `env:"AWS_S3_VIDEOS_BUCKET" envDefault:"gloads-ad-videos"`
	PresignExpireMinutes int    `env:"AWS_PRESIGN_EXPIRE_MINUTES" envDefault:"15"`
	// PublicBaseURL overrides the virtual-hosted S3 URL (e.g. a CDN in front of the bucket).
	PublicBaseURL string `env:"AWS_S3_PUBLIC_BASE_URL"`
}

// UPIConfig is the static payee the deposit page renders as QR code and deep link.
type UPIConfig struct {
	ID        string `env:"UPI_ID" envDefault:"7681917331@fam"`
	PayeeName string `env:"UPI_PAYEE_NAME" envDefault:"GloAds"`
}

// AdminConfig seeds an admin account at startup when both fields are set.
type AdminConfig struct {
	Handle   string `env:"ADMIN_HANDLE"`
	Password string `env:"ADMIN_PASSWORD"`
	Email    string `env:"ADMIN_EMAIL" envDefault:"admin@gloads.local"`
}

// NATSConfig enables domain event publishing when URL is set.
type NATSConfig struct {
	URL           string `env:"NATS_URL"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"gloads"`
}

// EmailConfig for SMTP delivery of password reset mails.
type EmailConfig struct {
	FromAddress   string `env:"EMAIL_FROM_ADDRESS" envDefault:"noreply@gloads.local"`
	FromName      string `env:"EMAIL_FROM_NAME" envDefault:"GloAds"`
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPass      string `env:"SMTP_PASS"`
	ResetURLBase  string `env:"PASSWORD_RESET_URL" envDefault:"http://localhost:9002/reset-password"`
	ResetTokenTTL int    `env:"PASSWORD_RESET_TTL_MINUTES" envDefault:"30"`
}

// MediaConfig limits uploaded ad videos.
type MediaConfig struct {
	MaxVideoMB int `env:"MEDIA_MAX_VIDEO_MB" envDefault:"100"`
}

// MetricsConfig configures the prometheus namespace.
type MetricsConfig struct {
	Namespace string `env:"METRICS_NAMESPACE" envDefault:"gloads"`
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// S3Enabled reports whether enough settings exist to build an S3 client.
func (c AWSConfig) S3Enabled() bool {
	return c.Region != "" && c.VideosBucket != ""
}

// SMTPEnabled reports whether reset mails can be delivered.
func (c EmailConfig) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// MaxVideoBytes returns the upload limit in bytes.
func (c MediaConfig) MaxVideoBytes() int64 {
	if c.MaxVideoMB <= 0 {
		return 100 << 20
	}
	return int64(c.MaxVideoMB) << 20
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Server.CORSAllowedOrigins = strings.TrimSpace(cfg.Server.CORSAllowedOrigins)
	if cfg.UPI.ID == "" {
		return nil, fmt.Errorf("UPI_ID must not be empty")
	}
	return cfg, nil
}
