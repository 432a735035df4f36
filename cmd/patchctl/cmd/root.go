package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nyukimin/patchgate/pkg/adminclient"
)

// Global flags.
var (
	serverURL      string
	token          string
	cfAccessID     string
	cfAccessSecret string
	timeout        time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "patchctl",
	Short: "Client for the patchgate admin server",
	Long: `patchctl drives a patchgate server: propose a unified diff, apply it by
id and hash, commit and push the working tree, or land a patch in one step.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", envOr("PATCHGATE_URL", "http://127.0.0.1:18888"), "admin server base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", envOr("ADMIN_API_TOKEN", os.Getenv("ADMIN_TOKEN")), "admin bearer token")
	rootCmd.PersistentFlags().StringVar(&cfAccessID, "cf-access-client-id", os.Getenv("CF_ACCESS_CLIENT_ID"), "Cloudflare Access client id")
	rootCmd.PersistentFlags().StringVar(&cfAccessSecret, "cf-access-client-secret", os.Getenv("CF_ACCESS_CLIENT_SECRET"), "Cloudflare Access client secret")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "request timeout")

	rootCmd.AddCommand(proposeCmd, applyCmd, commitCmd, pushCmd, landCmd, autoCmd, listCmd, showCmd, shellCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func newClient() *adminclient.Client {
	return adminclient.New(adminclient.Options{
		BaseURL:              serverURL,
		Token:                token,
		CFAccessClientID:     cfAccessID,
		CFAccessClientSecret: cfAccessSecret,
		Timeout:              timeout,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
