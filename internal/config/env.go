package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eliseohh/echobot/internal/log"
	"github.com/rs/zerolog"
)

// ParseString reads a string from the environment or returns defaultValue.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		logDefault(logger, key)
		return defaultValue
	}

	lower := strings.ToLower(key)
	if strings.Contains(lower, "token") || strings.Contains(lower, "password") {
		logger.Debug().Str("key", key).Bool("sensitive", true).Msg("using environment variable")
	} else {
		logger.Debug().Str("key", key).Str("value", value).Msg("using environment variable")
	}
	return value
}

// ParseInt reads an integer, falling back to defaultValue on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		logDefault(logger, key)
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Int("default", defaultValue).Msg("invalid integer, using default")
		return defaultValue
	}
	return i
}

// ParseFloat reads a float, falling back to defaultValue on parse errors.
func ParseFloat(key string, defaultValue float64) float64 {
	logger := log.WithComponent("config")
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		logDefault(logger, key)
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Float64("default", defaultValue).Msg("invalid number, using default")
		return defaultValue
	}
	return f
}

// ParseDuration reads a Go duration string such as "5m" or "10s".
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		logDefault(logger, key)
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Dur("default", defaultValue).Msg("invalid duration, using default")
		return defaultValue
	}
	return d
}

func logDefault(logger zerolog.Logger, key string) {
	logger.Debug().Str("key", key).Str("source", "default").Msg("using default value")
}
