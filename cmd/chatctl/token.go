package main

import (
	"errors"
	"fmt"
	"time"

	"carechat/pkg/auth"

	"github.com/spf13/cobra"
)

var (
	tokenEmail string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-identifier>",
	Short: "Mint an HS256 bearer token signed with JWT_SECRET",
	Long:  `For development and testing. Production tokens come from the identity provider.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set")
		}

		generator, err := auth.NewJWTGenerator(cfg.JWTSecret, cfg.JWTIssuer, nil, tokenTTL)
		if err != nil {
			return err
		}
		token, err := generator.GenerateToken(args[0], tokenEmail, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
