package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBSource       string
	FallbackDBPath string
	RailBaseURL    string
	Port           string
	Env            string
	RailTimeout    time.Duration
	StoreTimeout   time.Duration
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	railBaseURL := os.Getenv("RAIL_BASE_URL")
	if railBaseURL == "" {
		return nil, fmt.Errorf("RAIL_BASE_URL environment variable is required")
	}

	fallbackPath := os.Getenv("FALLBACK_DB_PATH")
	if fallbackPath == "" {
		fallbackPath = "railbridge_fallback.db"
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	railTimeout, err := durationEnv("RAIL_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	storeTimeout, err := durationEnv("STORE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		DBSource:       dbSource,
		FallbackDBPath: fallbackPath,
		RailBaseURL:    railBaseURL,
		Port:           port,
		Env:            env,
		RailTimeout:    railTimeout,
		StoreTimeout:   storeTimeout,
	}, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 5s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}
