package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	jwttoken "rightsledger/internal/jwt_token"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Mint a bearer token signed with LEDGER_JWT_SIGNING_KEY",
	Long:  "Mint an access token for local testing. The user ID becomes the acting party on transfer commands.",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc := jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	token, err := svc.GenerateAccessToken(args[0], uuid.NewString(), tokenTTL)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
