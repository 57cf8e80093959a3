package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all the configuration for the application
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true" validate:"required"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error"`

	// DBDriver selects the storage backend: sqlite (database/sql) or postgres (gorm)
	DBDriver     string `envconfig:"DB_DRIVER" default:"sqlite" validate:"oneof=sqlite postgres"`
	DatabasePath string `envconfig:"DB_PATH" default:"./data/quizbot.db"`
	DatabaseURL  string `envconfig:"DATABASE_URL" validate:"required_if=DBDriver postgres"`

	MaxQuestions   int    `envconfig:"MAX_QUESTIONS" default:"5" validate:"gte=0"`
	TelegraphToken string `envconfig:"TELEGRAPH_TOKEN"`
}

// Load reads an optional .env file and then the environment variables
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// A missing .env is fine, the variables may come from the environment
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
