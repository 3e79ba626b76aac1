// Package config handles application configuration from environment variables
// and the sources file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for environment settings.
const (
	DefaultDatabasePath      = "./data/bot.db"
	DefaultSourcesFile       = "./sources.yaml"
	DefaultLogLevel          = "info"
	DefaultMessagesPerMinute = 50
	DefaultDeliveryTimeout   = time.Hour
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken  string
	DatabasePath      string
	LogLevel          string
	AllowedUsers      []int64
	SourcesFile       string
	MessagesPerMinute int
	// DeliveryTimeout bounds one broadcast run. Recipients not reached in
	// time are reported failed.
	DeliveryTimeout time.Duration
}

// Load reads configuration from environment variables. The bot token is
// required.
func Load() (*Config, error) {
	cfg, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	return cfg, nil
}

// LoadEnv reads configuration from environment variables without requiring
// the bot token.
func LoadEnv() (*Config, error) {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = DefaultDatabasePath
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = DefaultLogLevel
	}

	sourcesFile := os.Getenv("SOURCES_FILE")
	if sourcesFile == "" {
		sourcesFile = DefaultSourcesFile
	}

	perMinute := DefaultMessagesPerMinute
	if raw := strings.TrimSpace(os.Getenv("MESSAGES_PER_MINUTE")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MESSAGES_PER_MINUTE %q: must be a positive integer", raw)
		}
		perMinute = n
	}

	deliveryTimeout := DefaultDeliveryTimeout
	if raw := strings.TrimSpace(os.Getenv("DELIVERY_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid DELIVERY_TIMEOUT %q: must be a positive duration", raw)
		}
		deliveryTimeout = d
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	return &Config{
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabasePath:      dbPath,
		LogLevel:          logLevel,
		AllowedUsers:      allowedUsers,
		SourcesFile:       sourcesFile,
		MessagesPerMinute: perMinute,
		DeliveryTimeout:   deliveryTimeout,
	}, nil
}

// IsUserAllowed checks whether a user may run operator commands.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// Level maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
