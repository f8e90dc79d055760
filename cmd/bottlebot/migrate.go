package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, _, err := bootstrap(); err != nil {
			return err
		}
		zap.L().Info("bottlebot: schema up to date")
		return nil
	},
}
