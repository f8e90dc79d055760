package actions

import (
	"testing"
	"time"

	"github.com/stake-plus/bottlebot/src/config"
	"github.com/stake-plus/bottlebot/src/data"
	"github.com/stake-plus/bottlebot/src/events"
)

func testConfig() config.Config {
	return config.Config{
		DiscordToken:  "token",
		Prefix:        "-",
		AutoAdmin:     "owner",
		XPPerReaction: 1,
		BottleMaxAge:  24 * time.Hour,
		ExpiryCron:    "*/5 * * * *",
		PairingPolicy: "oldest",
		HTTPAddr:      "127.0.0.1:0",
		JWTSecret:     "secret",
		APIRPS:        5,
		APIBurst:      10,
	}
}

func TestBuildModulesOrder(t *testing.T) {
	db, err := data.ConnectSQLite(data.MemoryDSN(t.Name()))
	if err != nil {
		t.Fatalf("connect sqlite: %v", err)
	}
	if err := data.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := testConfig()
	mods, err := BuildModules(cfg, NewServices(cfg, db, events.Nop{}), events.Nop{})
	if err != nil {
		t.Fatalf("BuildModules: %v", err)
	}
	var names []string
	for _, m := range mods {
		names = append(names, m.Name())
	}
	want := []string{"bot", "expiry", "webserver"}
	if len(names) != len(want) {
		t.Fatalf("modules = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("modules = %v, want %v", names, want)
		}
	}
}

func TestBuildModulesRejectsBadSettings(t *testing.T) {
	db, err := data.ConnectSQLite(data.MemoryDSN(t.Name()))
	if err != nil {
		t.Fatalf("connect sqlite: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"pairing policy", func(c *config.Config) { c.PairingPolicy = "loudest" }},
		{"cron", func(c *config.Config) { c.ExpiryCron = "every tuesday" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := BuildModules(cfg, NewServices(cfg, db, nil), nil); err == nil {
				t.Fatal("BuildModules should fail")
			}
		})
	}
}
