package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken         string       `yaml:"discord_token"`
	DatabasePath         string       `yaml:"database_path"`
	LogLevel             string       `yaml:"log_level"`
	CommandPrefix        string       `yaml:"command_prefix"`
	SweepIntervalSeconds int           `yaml:"sweep_interval_seconds"`
	Automod              AutomodConfig `yaml:"automod"`
	Notifications        NotifyConfig  `yaml:"notifications"`
}

type AutomodConfig struct {
	Enabled            bool     `yaml:"enabled"`
	BurstMessages      int      `yaml:"burst_messages"`
	BurstWindowSeconds int      `yaml:"burst_window_seconds"`
	BlockInvites       bool     `yaml:"block_invites"`
	BannedWords        []string `yaml:"banned_words"`
}

type NotifyConfig struct {
	DMEnabled   bool        `yaml:"dm_enabled"`
	EmbedColors EmbedColors `yaml:"embed_colors"`
}

type EmbedColors struct {
	Action  int `yaml:"action"`
	Warning int `yaml:"warning"`
	Error   int `yaml:"error"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:         "/data/warden.db",
		LogLevel:             "info",
		CommandPrefix:        "!",
		SweepIntervalSeconds: 30,
		Automod: AutomodConfig{
			Enabled:            false,
			BurstMessages:      6,
			BurstWindowSeconds: 8,
			BlockInvites:       true,
		},
		Notifications: NotifyConfig{
			DMEnabled: true,
			EmbedColors: EmbedColors{
				Action:  0xF59E0B,
				Warning: 0xEF4444,
				Error:   0xF97316,
			},
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	if cfg.SweepIntervalSeconds <= 0 {
		cfg.SweepIntervalSeconds = 30
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.CommandPrefix = envString("COMMAND_PREFIX", cfg.CommandPrefix)
	cfg.SweepIntervalSeconds = envInt("SWEEP_INTERVAL_SECONDS", cfg.SweepIntervalSeconds)
	cfg.Automod.Enabled = envBool("AUTOMOD_ENABLED", cfg.Automod.Enabled)
	cfg.Automod.BurstMessages = envInt("AUTOMOD_BURST_MESSAGES", cfg.Automod.BurstMessages)
	cfg.Automod.BurstWindowSeconds = envInt("AUTOMOD_BURST_WINDOW_SECONDS", cfg.Automod.BurstWindowSeconds)
	cfg.Automod.BlockInvites = envBool("AUTOMOD_BLOCK_INVITES", cfg.Automod.BlockInvites)
	cfg.Notifications.DMEnabled = envBool("DM_ENABLED", cfg.Notifications.DMEnabled)
	cfg.Notifications.EmbedColors.Action = envInt("EMBED_COLOR_ACTION", cfg.Notifications.EmbedColors.Action)
	cfg.Notifications.EmbedColors.Warning = envInt("EMBED_COLOR_WARNING", cfg.Notifications.EmbedColors.Warning)
	cfg.Notifications.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.Notifications.EmbedColors.Error)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
