package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/hfcRed/Agent-8s-sub001/internal/session"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken string `env:"DISCORD_BOT_TOKEN,required"`
	// GuildID scopes slash commands to one guild; empty registers them globally
	GuildID string `env:"DISCORD_GUILD_ID"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/bot.db"`

	// Sessions
	TestMode          bool          `env:"TEST_MODE"`
	Capacity          int           `env:"SESSION_CAPACITY" envDefault:"8"`
	MinParticipants   int           `env:"SESSION_MIN_PARTICIPANTS"`
	Expiry            time.Duration `env:"SESSION_EXPIRY" envDefault:"24h"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	ProcessingTimeout time.Duration `env:"PROCESSING_TIMEOUT" envDefault:"30s"`
	RepingCooldown    time.Duration `env:"REPING_COOLDOWN" envDefault:"10m"`
	RefreshInterval   time.Duration `env:"ANNOUNCE_INTERVAL" envDefault:"2s"`
	VoiceRooms        int           `env:"VOICE_ROOMS" envDefault:"2"`

	// Fallbacks for guilds that never ran /eights setup
	ModeratorRoleID string `env:"MODERATOR_ROLE_ID"`
	PingRoleID      string `env:"PING_ROLE_ID"`

	// Platform
	PlatformRetries int `env:"PLATFORM_RETRIES" envDefault:"4"`
	ShutdownRetries int `env:"SHUTDOWN_RETRIES" envDefault:"3"`
	// ShutdownTimeout bounds the teardown of all sessions on exit
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Metrics is served on this address when set, e.g. ":9090"
	MetricsAddr string `env:"METRICS_ADDR"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.TestMode {
		cfg.Capacity = session.TestCapacity
	}
	if cfg.MinParticipants <= 0 {
		cfg.MinParticipants = max(cfg.Capacity/2, 1)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("SESSION_CAPACITY must be positive, got %d", c.Capacity)
	}
	if c.MinParticipants > c.Capacity {
		return fmt.Errorf("SESSION_MIN_PARTICIPANTS (%d) exceeds SESSION_CAPACITY (%d)", c.MinParticipants, c.Capacity)
	}
	if c.Expiry <= 0 {
		return fmt.Errorf("SESSION_EXPIRY must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("ANNOUNCE_INTERVAL must be positive")
	}
	if c.ProcessingTimeout <= 0 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be positive")
	}
	if c.VoiceRooms < 0 {
		return fmt.Errorf("VOICE_ROOMS must not be negative")
	}
	return nil
}

// SetupLogging installs the default slog handler at the configured level
func SetupLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
