package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/autoreply/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "autoreply",
		Short: "Autoreply CLI - policy-grounded email replies",
		Long: `Autoreply CLI drafts, previews and sends replies through the autoreply API.

Environment variables:
  AUTOREPLY_API_KEY   API key for authentication (when the server requires one)
  AUTOREPLY_API_URL   API base URL (default: http://localhost:8000)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")

	rootCmd.AddCommand(client.HealthCmd())
	rootCmd.AddCommand(client.SendCmd())
	rootCmd.AddCommand(client.BatchCmd())
	rootCmd.AddCommand(client.PreviewCmd())
	rootCmd.AddCommand(client.InboxCmd())
	rootCmd.AddCommand(client.ProcessInboxCmd())
	rootCmd.AddCommand(client.PoliciesCmd())
	rootCmd.AddCommand(client.CacheCmd())
	rootCmd.AddCommand(client.AuthCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
