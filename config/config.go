package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config stores the application configuration. It is loaded once at
// process start and passed explicitly to every component that needs it.
type Config struct {
	Port string

	// Managed backend. SupabaseURL is the project root; the auth API lives
	// under /auth/v1. SupabaseKey is the service-role key.
	SupabaseURL string
	SupabaseKey string
	DatabaseURL string

	// S3-compatible object storage exposed by the backend.
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageRegion    string
	StorageUseSSL    bool
	AudioBucket      string
	CoverBucket      string

	FFprobePath            string
	MaxUploadSize          int64
	RequireMediaOnFinalize bool

	LogLevel      string
	LogFile       string
	LogMaxSize    int // megabytes
	LogMaxBackups int
	LogMaxAge     int // days
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		Port:                   getEnv("PORT", "3000"),
		SupabaseURL:            strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseKey:            os.Getenv("SUPABASE_KEY"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		StorageEndpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey:       os.Getenv("STORAGE_ACCESS_KEY"),
		StorageSecretKey:       os.Getenv("STORAGE_SECRET_KEY"),
		StorageRegion:          getEnv("STORAGE_REGION", "us-east-1"),
		StorageUseSSL:          getEnvBool("STORAGE_USE_SSL", false),
		AudioBucket:            getEnv("AUDIO_BUCKET", "track-audios"),
		CoverBucket:            getEnv("COVER_BUCKET", "track-cover-images"),
		FFprobePath:            getEnv("FFPROBE_PATH", "ffprobe"),
		MaxUploadSize:          getEnvInt64("MAX_UPLOAD_SIZE", 100<<20),
		RequireMediaOnFinalize: getEnvBool("REQUIRE_MEDIA_ON_FINALIZE", false),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFile:                os.Getenv("LOG_FILE"),
		LogMaxSize:             getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups:          getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:              getEnvInt("LOG_MAX_AGE", 30),
	}
}

// Validate reports the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.SupabaseURL == "" {
		errs = append(errs, errors.New("SUPABASE_URL is required"))
	}
	if c.SupabaseKey == "" {
		errs = append(errs, errors.New("SUPABASE_KEY is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.AudioBucket == c.CoverBucket {
		errs = append(errs, errors.New("AUDIO_BUCKET and COVER_BUCKET must differ"))
	}
	return errors.Join(errs...)
}

// AuthURL is the base URL of the auth API.
func (c *Config) AuthURL() string {
	return c.SupabaseURL + "/auth/v1"
}
