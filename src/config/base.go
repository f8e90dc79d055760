package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/stake-plus/bottlebot/src/data"
)

// Config holds everything the bot process needs.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN"`
	AutoAdmin    string `env:"AUTO_ADMIN"`
	Prefix       string `env:"BOTTLE_PREFIX" envDefault:"-"`
	// SlashCommands also registers the command table as global slash commands.
	SlashCommands bool `env:"SLASH_COMMANDS" envDefault:"false"`

	DBDriver   string `env:"DB_DRIVER" envDefault:"mysql"`
	MySQLDSN   string `env:"MYSQL_DSN"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"bottles.db"`
	RedisURL   string `env:"REDIS_URL"`

	XPPerReaction int64         `env:"XP_PER_REACTION" envDefault:"1"`
	BottleMaxAge  time.Duration `env:"BOTTLE_MAX_AGE" envDefault:"168h"`
	ExpiryCron    string        `env:"EXPIRY_CRON" envDefault:"*/15 * * * *"`
	PairingPolicy string        `env:"PAIRING_POLICY" envDefault:"oldest"`

	HTTPAddr    string   `env:"HTTP_ADDR" envDefault:":8080"`
	JWTSecret   string   `env:"JWT_SECRET"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	APIRPS      float64  `env:"API_RPS" envDefault:"5"`
	APIBurst    int      `env:"API_BURST" envDefault:"10"`
	PublicURL   string   `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`

	LogEnv string `env:"LOG_ENV" envDefault:"prod"`
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ApplySettings overlays values stored in the settings table. A non-empty
// database value wins over the environment.
func ApplySettings(cfg *Config, db *gorm.DB) error {
	if err := data.LoadSettings(db); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	cfg.DiscordToken = GetSetting("discord_token", cfg.DiscordToken)
	cfg.AutoAdmin = GetSetting("auto_admin", cfg.AutoAdmin)
	cfg.Prefix = GetSetting("bottle_prefix", cfg.Prefix)
	cfg.ExpiryCron = GetSetting("expiry_cron", cfg.ExpiryCron)
	cfg.PairingPolicy = GetSetting("pairing_policy", cfg.PairingPolicy)
	cfg.PublicURL = GetSetting("public_url", cfg.PublicURL)
	cfg.JWTSecret = GetSetting("jwt_secret", cfg.JWTSecret)

	if v := data.GetSetting("xp_per_reaction"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("setting xp_per_reaction: invalid value %q", v)
		}
		cfg.XPPerReaction = n
	}
	if v := data.GetSetting("bottle_max_age"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("setting bottle_max_age: %w", err)
		}
		cfg.BottleMaxAge = d
	}
	return nil
}

// Validate checks the fields every runtime needs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DiscordToken) == "" {
		return fmt.Errorf("DISCORD_TOKEN is not set")
	}
	if len([]rune(c.Prefix)) != 1 {
		return fmt.Errorf("BOTTLE_PREFIX must be a single character, got %q", c.Prefix)
	}
	if c.XPPerReaction <= 0 {
		return fmt.Errorf("XP_PER_REACTION must be positive")
	}
	if c.BottleMaxAge <= 0 {
		return fmt.Errorf("BOTTLE_MAX_AGE must be positive")
	}
	return nil
}

// GetSetting retrieves a setting with fallback to the current value.
func GetSetting(name, fallback string) string {
	if val := data.GetSetting(name); val != "" {
		return val
	}
	return fallback
}
