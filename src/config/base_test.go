package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stake-plus/bottlebot/src/data"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Prefix != "-" {
		t.Fatalf("prefix = %q, want %q", cfg.Prefix, "-")
	}
	if cfg.XPPerReaction != 1 {
		t.Fatalf("xp per reaction = %d, want 1", cfg.XPPerReaction)
	}
	if cfg.BottleMaxAge != 168*time.Hour {
		t.Fatalf("bottle max age = %v, want 168h", cfg.BottleMaxAge)
	}
	if cfg.PairingPolicy != "oldest" {
		t.Fatalf("pairing policy = %q, want oldest", cfg.PairingPolicy)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadParsesLists(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors origins = %v", cfg.CORSOrigins)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("XP_PER_REACTION", "lots")

	_, err := Load()
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{DiscordToken: "t", Prefix: "-", XPPerReaction: 1, BottleMaxAge: time.Hour}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing token", mutate: func(c *Config) { c.DiscordToken = "" }},
		{name: "long prefix", mutate: func(c *Config) { c.Prefix = "!!" }},
		{name: "zero xp", mutate: func(c *Config) { c.XPPerReaction = 0 }},
		{name: "zero age", mutate: func(c *Config) { c.BottleMaxAge = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestApplySettingsOverridesEnv(t *testing.T) {
	db, err := data.ConnectSQLite(data.MemoryDSN(t.Name()))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := data.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := data.PutSetting(db, "bottle_prefix", "!"); err != nil {
		t.Fatalf("put prefix: %v", err)
	}
	if err := data.PutSetting(db, "xp_per_reaction", "4"); err != nil {
		t.Fatalf("put xp: %v", err)
	}

	cfg := Config{Prefix: "-", XPPerReaction: 1, PairingPolicy: "oldest"}
	if err := ApplySettings(&cfg, db); err != nil {
		t.Fatalf("apply settings: %v", err)
	}
	if cfg.Prefix != "!" {
		t.Fatalf("prefix = %q, want %q", cfg.Prefix, "!")
	}
	if cfg.XPPerReaction != 4 {
		t.Fatalf("xp per reaction = %d, want 4", cfg.XPPerReaction)
	}
	if cfg.PairingPolicy != "oldest" {
		t.Fatalf("pairing policy = %q, want unchanged", cfg.PairingPolicy)
	}
}
