package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DB        DBConfig
	JWT       JWTConfig
	Server    ServerConfig
	Sheets    SheetsConfig
	LLM       LLMConfig
	Storage   StorageConfig
	MinIO     MinIOConfig
	Export    ExportConfig
	RateLimit RateLimitConfig
	Upload    UploadConfig
}

type DBConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Path     string
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port              string
	CORSOrigins       string
	BodyLimitMB       int
	AllowRegistration bool
	AdminUsername     string
	AdminPassword     string
}

type SheetsConfig struct {
	Driver              string
	SpreadsheetID       string
	ServiceAccountEmail string
	PrivateKey          string
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	Models  []string
	Timeout time.Duration
}

type StorageConfig struct {
	Driver        string
	UploadDir     string
	PublicBaseURL string
}

type MinIOConfig struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

type ExportConfig struct {
	QueueBufferSize int
	MaxAttempts     int
	RetryDelays     []time.Duration
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	RedisURL string
}

type UploadConfig struct {
	MaxBytes int64
}

// Load reads configuration from the environment, after merging a local .env file when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DB: DBConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "formsheet"),
			Password: getEnv("DB_PASSWORD", "formsheet_secret"),
			Name:     getEnv("DB_NAME", "formsheet"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "formsheet.db"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port:              getEnv("SERVER_PORT", "8080"),
			CORSOrigins:       getEnv("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
			BodyLimitMB:       getEnvAsInt("BODY_LIMIT_MB", 20),
			AllowRegistration: getEnvAsBool("ALLOW_REGISTRATION", true),
			AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
			AdminPassword:     getEnv("ADMIN_PASSWORD", "admin123"),
		},
		Sheets: SheetsConfig{
			Driver:              getEnv("SHEETS_DRIVER", "google"),
			SpreadsheetID:       getEnv("GOOGLE_SPREADSHEET_ID", ""),
			ServiceAccountEmail: getEnv("GOOGLE_SERVICE_ACCOUNT_EMAIL", ""),
			PrivateKey:          getEnv("GOOGLE_PRIVATE_KEY", ""),
		},
		LLM: LLMConfig{
			BaseURL: getEnv("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
			APIKey:  getEnv("LLM_API_KEY", ""),
			Models:  getEnvAsList("LLM_MODELS", []string{"gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-pro"}),
			Timeout: getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Storage: StorageConfig{
			Driver:        getEnv("STORAGE_DRIVER", "local"),
			UploadDir:     getEnv("UPLOAD_DIR", "public/uploads"),
			PublicBaseURL: getEnv("UPLOAD_PUBLIC_BASE_URL", "/uploads"),
		},
		MinIO: MinIOConfig{
			Endpoint:       getEnv("MINIO_ENDPOINT", "localhost:9000"),
			PublicEndpoint: getEnv("MINIO_PUBLIC_ENDPOINT", getEnv("MINIO_ENDPOINT", "localhost:9000")),
			AccessKey:      getEnv("MINIO_ACCESS_KEY", "formsheet"),
			SecretKey:      getEnv("MINIO_SECRET_KEY", "formsheet_secret"),
			Bucket:         getEnv("MINIO_BUCKET", "formsheet"),
			UseSSL:         getEnvAsBool("MINIO_USE_SSL", false),
		},
		Export: ExportConfig{
			QueueBufferSize: getEnvAsInt("EXPORT_QUEUE_BUFFER_SIZE", 100),
			MaxAttempts:     getEnvAsInt("EXPORT_MAX_ATTEMPTS", 5),
			RetryDelays:     getEnvAsDurationList("EXPORT_RETRY_DELAYS", []time.Duration{30 * time.Second, 2 * time.Minute, 10 * time.Minute}),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			Window:   getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			RedisURL: getEnv("REDIS_URL", ""),
		},
		Upload: UploadConfig{
			MaxBytes: int64(getEnvAsInt("UPLOAD_MAX_BYTES", 5*1024*1024)),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

func getEnvAsDurationList(key string, fallback []time.Duration) []time.Duration {
	raw := getEnvAsList(key, nil)
	if len(raw) == 0 {
		return fallback
	}
	delays := make([]time.Duration, 0, len(raw))
	for _, item := range raw {
		parsed, err := time.ParseDuration(item)
		if err != nil {
			return fallback
		}
		delays = append(delays, parsed)
	}
	return delays
}
