package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stake-plus/bottlebot/src/webserver"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue an operator API token for a Discord user",
	Long:  "The token only grants access while the user is flagged as a bot admin.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := bootstrap()
		if err != nil {
			return err
		}
		tok, err := webserver.IssueToken(cfg.JWTSecret, args[0], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
