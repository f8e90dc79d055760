package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stake-plus/bottlebot/src/bottles"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire stale pending bottles once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}
		sweeper, err := bottles.NewSweeper(bottles.NewStore(db), cfg.BottleMaxAge, cfg.ExpiryCron, nil, zap.L().Named("expiry"))
		if err != nil {
			return err
		}
		n, err := sweeper.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d bottle(s)\n", n)
		return nil
	},
}
