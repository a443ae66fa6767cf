package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env string `validate:"required,oneof=dev prod"`
	DB  struct {
		Host           string `validate:"required"`
		Port           int    `validate:"required,min=1,max=65535"`
		User           string `validate:"required"`
		Password       string
		Name           string `validate:"required"`
		MinCached      int    `validate:"min=0"`
		MaxCached      int    `validate:"min=1"`
		MaxShared      int    `validate:"min=0"`
		MaxConnections int    `validate:"min=1"`
		AcquireTimeout time.Duration
	}
	Health struct {
		Schedule string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.DB.Host = getenv("DB_HOST", "localhost")
	c.DB.Port = getenvInt("DB_PORT", 3306)
	c.DB.User = getenv("DB_USER", "root")
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = getenv("DB_NAME", "test_db")
	c.DB.MinCached = getenvInt("DB_MIN_CACHED", 1)
	c.DB.MaxCached = getenvInt("DB_MAX_CACHED", 5)
	c.DB.MaxShared = getenvInt("DB_MAX_SHARED", 5)
	c.DB.MaxConnections = getenvInt("DB_MAX_CONNECTIONS", 10)
	c.DB.AcquireTimeout = getenvDuration("DB_ACQUIRE_TIMEOUT", 30*time.Second)
	c.Health.Schedule = getenv("HEALTH_SCHEDULE", "@every 30s")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/kairodb.log")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if c.DB.MaxCached > c.DB.MaxConnections {
		return Config{}, errors.New("DB_MAX_CACHED must not exceed DB_MAX_CONNECTIONS")
	}
	if c.DB.MinCached > c.DB.MaxCached {
		return Config{}, errors.New("DB_MIN_CACHED must not exceed DB_MAX_CACHED")
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	// Bare numbers are read as seconds.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
