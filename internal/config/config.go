package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken    string           `yaml:"discord_token"`
	DatabasePath    string           `yaml:"database_path"`
	LogLevel        string           `yaml:"log_level"`
	DefaultPrefix   string           `yaml:"default_prefix"`
	DefaultLanguage string           `yaml:"default_language"`
	OwnerIDs        []string         `yaml:"owner_ids"`
	Health          HealthConfig     `yaml:"health"`
	Automod         AutomodTuning    `yaml:"automod"`
	Leveling        LevelingTuning   `yaml:"leveling"`
	Threads         ThreadConfig     `yaml:"threads"`
	APIKeys         APIKeyConfig     `yaml:"api_keys"`
	Supervisor      SupervisorConfig `yaml:"supervisor"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// AutomodTuning holds process-wide automod knobs; per-guild filter
// thresholds live in the guild settings document.
type AutomodTuning struct {
	WarningSeconds  int `yaml:"warning_seconds"`
	TimeoutShortMin int `yaml:"timeout_short_minutes"`
	TimeoutLongMin  int `yaml:"timeout_long_minutes"`
	ShortThreshold  int `yaml:"short_threshold"`
	LongThreshold   int `yaml:"long_threshold"`
}

type LevelingTuning struct {
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

type ThreadConfig struct {
	CloseGraceSeconds int `yaml:"close_grace_seconds"`
}

// APIKeyConfig carries credentials for optional outbound integrations.
// A missing key disables the matching feature instead of failing startup.
type APIKeyConfig struct {
	OpenAI        string `yaml:"openai"`
	SpotifyID     string `yaml:"spotify_client_id"`
	SpotifySecret string `yaml:"spotify_client_secret"`
	Weather       string `yaml:"weather"`
}

type SupervisorConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	StepSeconds    int `yaml:"step_seconds"`
	MaxWaitSeconds int `yaml:"max_wait_seconds"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:    "/data/sbmod.db",
		LogLevel:        "info",
		DefaultPrefix:   "!",
		DefaultLanguage: "en",
		Health:          HealthConfig{Enabled: false, Addr: ":8080"},
		Automod: AutomodTuning{
			WarningSeconds:  5,
			TimeoutShortMin: 10,
			TimeoutLongMin:  60,
			ShortThreshold:  3,
			LongThreshold:   5,
		},
		Leveling:   LevelingTuning{CooldownSeconds: 60},
		Threads:    ThreadConfig{CloseGraceSeconds: 10},
		Supervisor: SupervisorConfig{MaxAttempts: 5, StepSeconds: 60, MaxWaitSeconds: 300},
	}
}

func Load() (Config, error) {
	// .env first so the plain-env overlay below sees its values.
	_ = godotenv.Load()

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
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DefaultPrefix = envString("DEFAULT_PREFIX", cfg.DefaultPrefix)
	cfg.DefaultLanguage = envString("DEFAULT_LANGUAGE", cfg.DefaultLanguage)
	if raw := os.Getenv("OWNER_IDS"); raw != "" {
		cfg.OwnerIDs = splitIDs(raw)
	}
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Automod.WarningSeconds = envInt("AUTOMOD_WARNING_SECONDS", cfg.Automod.WarningSeconds)
	cfg.Automod.TimeoutShortMin = envInt("AUTOMOD_TIMEOUT_SHORT_MINUTES", cfg.Automod.TimeoutShortMin)
	cfg.Automod.TimeoutLongMin = envInt("AUTOMOD_TIMEOUT_LONG_MINUTES", cfg.Automod.TimeoutLongMin)
	cfg.Leveling.CooldownSeconds = envInt("LEVELING_COOLDOWN_SECONDS", cfg.Leveling.CooldownSeconds)
	cfg.Threads.CloseGraceSeconds = envInt("THREAD_CLOSE_GRACE_SECONDS", cfg.Threads.CloseGraceSeconds)
	cfg.APIKeys.OpenAI = envString("OPENAI_API_KEY", cfg.APIKeys.OpenAI)
	cfg.APIKeys.SpotifyID = envString("SPOTIFY_CLIENT_ID", cfg.APIKeys.SpotifyID)
	cfg.APIKeys.SpotifySecret = envString("SPOTIFY_CLIENT_SECRET", cfg.APIKeys.SpotifySecret)
	cfg.APIKeys.Weather = envString("WEATHER_API_KEY", cfg.APIKeys.Weather)
	cfg.Supervisor.MaxAttempts = envInt("SUPERVISOR_MAX_ATTEMPTS", cfg.Supervisor.MaxAttempts)
	cfg.Supervisor.StepSeconds = envInt("SUPERVISOR_STEP_SECONDS", cfg.Supervisor.StepSeconds)
	cfg.Supervisor.MaxWaitSeconds = envInt("SUPERVISOR_MAX_WAIT_SECONDS", cfg.Supervisor.MaxWaitSeconds)
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

func splitIDs(raw string) []string {
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
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
