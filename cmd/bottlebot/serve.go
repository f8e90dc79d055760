package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stake-plus/bottlebot/src/actions"
	"github.com/stake-plus/bottlebot/src/data"
	"github.com/stake-plus/bottlebot/src/events"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway, the expiry sweeper and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = zap.L().Sync() }()
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var pub events.Publisher = events.Nop{}
		if cfg.RedisURL != "" {
			rdb, err := data.ConnectRedis(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer rdb.Close()
			pub = events.NewStream(rdb, events.DefaultStream)
			zap.L().Info("bottlebot: publishing events", zap.String("stream", events.DefaultStream))
		}

		manager, err := actions.StartAll(ctx, cfg, db, pub)
		if err != nil {
			return fmt.Errorf("actions start: %w", err)
		}

		<-ctx.Done()
		zap.L().Info("bottlebot: shutting down")
		manager.Stop(context.Background())
		return nil
	},
}
