package config

import (
	"context"
	"errors"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DefaultPrefix != "!" {
		t.Fatalf("expected default prefix !, got %q", cfg.DefaultPrefix)
	}
	if cfg.Automod.ShortThreshold != 3 || cfg.Automod.LongThreshold != 5 {
		t.Fatalf("unexpected punishment thresholds: %d/%d", cfg.Automod.ShortThreshold, cfg.Automod.LongThreshold)
	}
	if cfg.Threads.CloseGraceSeconds != 10 {
		t.Fatalf("expected 10s close grace, got %d", cfg.Threads.CloseGraceSeconds)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DEFAULT_PREFIX", "?")
	t.Setenv("OWNER_IDS", "1, 2,3,")
	t.Setenv("LEVELING_COOLDOWN_SECONDS", "30")

	cfg := DefaultConfig()
	applyEnv(&cfg)

	if cfg.DefaultPrefix != "?" {
		t.Fatalf("expected prefix ?, got %q", cfg.DefaultPrefix)
	}
	if len(cfg.OwnerIDs) != 3 || cfg.OwnerIDs[2] != "3" {
		t.Fatalf("unexpected owner ids: %v", cfg.OwnerIDs)
	}
	if cfg.Leveling.CooldownSeconds != 30 {
		t.Fatalf("expected cooldown 30, got %d", cfg.Leveling.CooldownSeconds)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("no route") }

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func TestPreflightCollectsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	report := Preflight(context.Background(), cfg, failingPinger{})

	if report.OK() {
		t.Fatalf("expected errors")
	}
	// Both the missing token and the unreachable store must be reported
	// together, not just the first.
	if len(report.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", report.Errors)
	}
	if len(report.Warnings) == 0 {
		t.Fatalf("expected optional-key warnings")
	}
}

func TestPreflightOptionalKeysAreWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DiscordToken = "token"
	report := Preflight(context.Background(), cfg, okPinger{})

	if !report.OK() {
		t.Fatalf("unexpected errors: %v", report.Errors)
	}
	if len(report.Warnings) < 4 {
		t.Fatalf("expected warnings for missing optional keys, got %v", report.Warnings)
	}
}
