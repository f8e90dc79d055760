package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/stake-plus/bottlebot/src/config"
	"github.com/stake-plus/bottlebot/src/data"
	"github.com/stake-plus/bottlebot/src/logging"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "bottlebot",
	Short:   "Discord bottle exchange bot",
	Long:    "bottlebot pairs anonymous messages between Discord communities and tracks their reputation.",
	Version: version,
	SilenceUsage: true,
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, tokenCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration, installs the logger and opens the migrated
// database with the settings table applied on top of the environment.
func bootstrap() (config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if _, err := logging.New(cfg.LogEnv); err != nil {
		return config.Config{}, nil, fmt.Errorf("logger: %w", err)
	}

	db, err := data.Connect(cfg.DBDriver, cfg.MySQLDSN, cfg.SQLitePath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("db: %w", err)
	}
	if err := data.Migrate(db); err != nil {
		return config.Config{}, nil, err
	}
	if err := config.ApplySettings(&cfg, db); err != nil {
		return config.Config{}, nil, err
	}
	zap.L().Info("bottlebot: configuration loaded",
		zap.String("db_driver", cfg.DBDriver),
		zap.String("pairing_policy", cfg.PairingPolicy),
		zap.Duration("bottle_max_age", cfg.BottleMaxAge))
	return cfg, db, nil
}
