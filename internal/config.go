package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	LogLevel slog.Level
	Port     uint16
	APIKey   string
	SMTP     SMTPConfig
	Storage  StorageConfig
	Audit    AuditConfig
	Dispatch DispatchConfig
}

// SMTPConfig holds the outbound mail transport settings.
// UseSSL opens the connection with implicit TLS; UseTLS negotiates
// STARTTLS on a plaintext connection. When both are set, UseSSL wins.
type SMTPConfig struct {
	Host           string
	Port           uint16
	UseSSL         bool
	UseTLS         bool
	UsePassword    bool
	SenderEmail    string
	SenderPassword string
	// SenderDomain is the domain used to build Message-ID headers.
	SenderDomain string
}

// StorageConfig selects the attachment staging backend.
// The "s3" provider works against any S3-compatible endpoint (MinIO included).
type StorageConfig struct {
	Provider    string // "local" or "s3"
	LocalPath   string
	Endpoint    string
	Region      string
	AccessKeyID string
	SecretKey   string
	Bucket      string
	UseSSL      bool
}

// AuditConfig holds settings for the on-disk delivery audit trail.
type AuditConfig struct {
	BasePath string
}

// DispatchConfig bounds the background dispatch pool.
type DispatchConfig struct {
	Workers   int
	QueueSize int
}

func NewConfig() (*Config, error) {
	// Try to load .env from current directory, then walk up to find it (max 2 levels)
	err := godotenv.Load()
	if err != nil {
		dir, _ := os.Getwd()
		found := false
		for i := 0; i < 2; i++ {
			dir = filepath.Join(dir, "..")
			if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
				found = true
				break
			}
		}
		if !found {
			slog.Default().Warn("Warning: .env file not found, using environment variables and defaults")
		}
	}

	cfg := &Config{
		Env:      getEnv("ENV", "dev"),
		LogLevel: parseLogLevel(getEnv("LOG_LEVEL", "info")),
		Port:     getEnvUint16("PORT", 8000),
		APIKey:   getEnv("API_KEY", ""),
		SMTP: SMTPConfig{
			Host:           getEnv("SMTP_HOST", "localhost"),
			Port:           getEnvUint16("SMTP_PORT", 1025),
			UseSSL:         getEnvBool("SMTP_USE_SSL", false),
			UseTLS:         getEnvBool("SMTP_USE_TLS", false),
			UsePassword:    getEnvBool("SMTP_USE_PASSWORD", false),
			SenderEmail:    getEnv("SENDER_EMAIL", "noreply@muninn.local"),
			SenderPassword: getEnv("SENDER_PASSWORD", ""),
			SenderDomain:   getEnv("SENDER_DOMAIN", "muninn.local"),
		},
		Storage: StorageConfig{
			Provider:    getEnv("STORAGE_PROVIDER", "local"),
			LocalPath:   getEnv("LOCAL_STORAGE_PATH", "./uploads"),
			Endpoint:    getEnv("S3_ENDPOINT", "localhost:9000"),
			Region:      getEnv("S3_REGION", "us-east-1"),
			AccessKeyID: getEnv("S3_ACCESS_KEY_ID", ""),
			SecretKey:   getEnv("S3_SECRET_ACCESS_KEY", ""),
			Bucket:      getEnv("S3_BUCKET", "emails"),
			UseSSL:      getEnvBool("S3_USE_SSL", false),
		},
		Audit: AuditConfig{
			BasePath: getEnv("AUDIT_DATA_DIR", "data"),
		},
		Dispatch: DispatchConfig{
			Workers:   getEnvInt("DISPATCH_WORKERS", 4),
			QueueSize: getEnvInt("DISPATCH_QUEUE_SIZE", 64),
		},
	}

	// Validate env
	validEnv := cfg.Env == "dev" || cfg.Env == "prod"
	if !validEnv {
		slog.Default().Warn("Invalid environment. Using default: prod", slog.String("env", cfg.Env))
		cfg.Env = "prod"
	}

	if cfg.Env == "prod" && cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY must be set in production environment")
	}

	if cfg.SMTP.UsePassword && cfg.SMTP.SenderPassword == "" {
		return nil, fmt.Errorf("SENDER_PASSWORD required when SMTP_USE_PASSWORD is enabled")
	}

	if cfg.SMTP.UseSSL && cfg.SMTP.UseTLS {
		slog.Default().Warn("Both SMTP_USE_SSL and SMTP_USE_TLS are set; implicit TLS takes precedence")
	}

	if cfg.Storage.Provider == "s3" {
		if cfg.Storage.AccessKeyID == "" || cfg.Storage.SecretKey == "" {
			return nil, fmt.Errorf("S3 credentials required when using s3 storage")
		}
		if cfg.Storage.Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET required when using s3 storage")
		}
	}

	if cfg.Dispatch.Workers < 1 {
		cfg.Dispatch.Workers = 1
	}
	if cfg.Dispatch.QueueSize < 1 {
		cfg.Dispatch.QueueSize = 1
	}

	return cfg, nil
}

// parseLogLevel resolves LOG_LEVEL into a slog level. This is the only
// place the value is interpreted; everything downstream works with the
// resolved level.
func parseLogLevel(value string) slog.Level {
	switch value {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Default().Warn("Invalid log level. Using default: info", slog.String("value", value))
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint16(key string, defaultValue uint16) uint16 {
	if value := os.Getenv(key); value != "" {
		var intValue uint16
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
