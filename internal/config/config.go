package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvProduction represents the production environment.
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	// Environment settings
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Status server settings
	ServerEnabled bool   `envconfig:"SERVER_ENABLED" default:"false"`
	Port          string `envconfig:"PORT" default:"8080"`
	HSTSMaxAge    int    `envconfig:"HSTS_MAX_AGE" default:"31536000"`

	// Correction pipeline settings
	CorrectionMinChars         int           `envconfig:"CORRECTION_MIN_CHARS" default:"30"`
	CorrectionFailureThreshold int           `envconfig:"CORRECTION_FAILURE_THRESHOLD" default:"3"`
	CorrectionOpenWindow       time.Duration `envconfig:"CORRECTION_OPEN_WINDOW" default:"5m"`

	// Notification settings
	NotifyCommand   string `envconfig:"NOTIFY_COMMAND" default:""`
	NotifyQueueSize int    `envconfig:"NOTIFY_QUEUE_SIZE" default:"16"`

	// Storage settings. Empty means the default working directory.
	DataDir string `envconfig:"DATA_DIR" default:""`
}

// LoadConfig loads configuration from .env file and environment variables.
func LoadConfig() (*Config, error) {
	// Try to load .env file (optional for development)
	if err := godotenv.Load(); err != nil {
		// Not an error if file doesn't exist (expected in production)
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	// Parse environment variables into config struct
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	return &config, nil
}
