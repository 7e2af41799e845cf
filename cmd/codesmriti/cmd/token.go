package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbhalerao/codesmriti/internal/auth"
)

var (
	tokenTenant string
	tokenTTL    time.Duration
)

// token issues a local tenant bearer token. In production tokens come
// from the authentication service; this covers tests and single-box
// deployments.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a tenant bearer token for local use",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		verifier, err := auth.NewVerifier(cfg.TokenSecret(), "codesmriti")
		if err != nil {
			return fmt.Errorf("token secret missing: set %s", cfg.Server.TokenSecretEnv)
		}

		token, err := verifier.IssueToken(tokenTenant, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenTenant, "tenant", "", "tenant id (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(tokenCmd)
}
