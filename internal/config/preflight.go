package config

import (
	"context"
	"fmt"
	"strings"
)

// PreflightReport collects every configuration problem found before the bot
// starts listening for events, instead of failing on the first one.
type PreflightReport struct {
	Errors   []string
	Warnings []string
}

func (r PreflightReport) OK() bool {
	return len(r.Errors) == 0
}

func (r PreflightReport) Summary() string {
	var sb strings.Builder
	for _, e := range r.Errors {
		sb.WriteString("error: " + e + "\n")
	}
	for _, w := range r.Warnings {
		sb.WriteString("warning: " + w + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// StorePinger is the slice of the storage layer preflight needs.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// Preflight validates required and optional dependencies. Missing optional
// keys become warnings (the matching feature stays disabled); missing
// required settings and an unreachable store become errors.
func Preflight(ctx context.Context, cfg Config, store StorePinger) PreflightReport {
	var report PreflightReport

	if cfg.DiscordToken == "" {
		report.Errors = append(report.Errors, "DISCORD_TOKEN is not set")
	}
	if cfg.DatabasePath == "" {
		report.Errors = append(report.Errors, "DATABASE_PATH is not set")
	}
	if store != nil {
		if err := store.Ping(ctx); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("store unreachable: %v", err))
		}
	}

	optional := []struct {
		value   string
		name    string
		feature string
	}{
		{cfg.APIKeys.OpenAI, "OPENAI_API_KEY", "AI chat relay"},
		{cfg.APIKeys.SpotifyID, "SPOTIFY_CLIENT_ID", "music metadata"},
		{cfg.APIKeys.SpotifySecret, "SPOTIFY_CLIENT_SECRET", "music metadata"},
		{cfg.APIKeys.Weather, "WEATHER_API_KEY", "weather commands"},
	}
	for _, opt := range optional {
		if opt.value == "" {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s not set, %s disabled", opt.name, opt.feature))
		}
	}
	if len(cfg.OwnerIDs) == 0 {
		report.Warnings = append(report.Warnings, "OWNER_IDS not set, owner-only commands disabled")
	}

	return report
}
