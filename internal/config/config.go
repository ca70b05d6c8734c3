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
	DiscordToken   string         `yaml:"discord_token"`
	DatabasePath   string         `yaml:"database_path"`
	LogLevel       string         `yaml:"log_level"`
	Health         HealthConfig   `yaml:"health"`
	Leveling       LevelingConfig `yaml:"leveling"`
	DailySummary   bool           `yaml:"daily_summary"`
	EmbedColors    EmbedColors    `yaml:"embed_colors"`
	ActivityToChat bool           `yaml:"activity_to_channel"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LevelingConfig holds the process-wide defaults applied to guilds without a
// stored settings row.
type LevelingConfig struct {
	Enabled         bool    `yaml:"enabled"`
	XPMin           int     `yaml:"xp_min"`
	XPMax           int     `yaml:"xp_max"`
	CooldownSeconds int     `yaml:"cooldown_seconds"`
	CurveFormula    string  `yaml:"curve_formula"`
	CurveMaxLevel   int     `yaml:"curve_max_level"`
	BoostMultiplier float64 `yaml:"boost_multiplier"`
	AnnounceLevelUp bool    `yaml:"announce_levelup"`
	VoiceBilling    string  `yaml:"voice_billing"`
}

type EmbedColors struct {
	Primary int `yaml:"primary"`
	Warning int `yaml:"warning"`
	Error   int `yaml:"error"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath: "/data/levelsmith.db",
		LogLevel:     "info",
		Health:       HealthConfig{Enabled: false, Addr: ":8080"},
		Leveling: LevelingConfig{
			Enabled:         false,
			XPMin:           15,
			XPMax:           25,
			CooldownSeconds: 60,
			CurveFormula:    "default",
			CurveMaxLevel:   100,
			BoostMultiplier: 1.5,
			AnnounceLevelUp: true,
			VoiceBilling:    "final",
		},
		DailySummary:   false,
		ActivityToChat: false,
		EmbedColors: EmbedColors{
			Primary: 0x5865F2,
			Warning: 0xF59E0B,
			Error:   0xEF4444,
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

	if cfg.Leveling.XPMin < 0 {
		cfg.Leveling.XPMin = 0
	}
	if cfg.Leveling.XPMax < cfg.Leveling.XPMin {
		cfg.Leveling.XPMax = cfg.Leveling.XPMin
	}
	if cfg.Leveling.CurveMaxLevel < 1 {
		cfg.Leveling.CurveMaxLevel = 100
	}
	if cfg.Leveling.BoostMultiplier <= 0 {
		cfg.Leveling.BoostMultiplier = 1.5
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.DailySummary = envBool("DAILY_SUMMARY", cfg.DailySummary)
	cfg.ActivityToChat = envBool("ACTIVITY_TO_CHANNEL", cfg.ActivityToChat)
	cfg.Leveling.Enabled = envBool("LEVELING_ENABLED", cfg.Leveling.Enabled)
	cfg.Leveling.XPMin = envInt("LEVELING_XP_MIN", cfg.Leveling.XPMin)
	cfg.Leveling.XPMax = envInt("LEVELING_XP_MAX", cfg.Leveling.XPMax)
	cfg.Leveling.CooldownSeconds = envInt("LEVELING_COOLDOWN_SECONDS", cfg.Leveling.CooldownSeconds)
	cfg.Leveling.CurveFormula = envString("LEVELING_CURVE_FORMULA", cfg.Leveling.CurveFormula)
	cfg.Leveling.CurveMaxLevel = envInt("LEVELING_CURVE_MAX_LEVEL", cfg.Leveling.CurveMaxLevel)
	cfg.Leveling.VoiceBilling = envString("LEVELING_VOICE_BILLING", cfg.Leveling.VoiceBilling)
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
