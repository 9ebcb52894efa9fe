package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/autoreply/internal/config"
	"github.com/spf13/cobra"
)

// AuthorizeCmd runs the Gmail consent flow and stores the resulting token.
func AuthorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize",
		Short: "Authorise Gmail access",
		Long: `Open the Google consent page for the configured OAuth client and store the
token at AUTOREPLY_GMAIL_TOKEN_PATH. A loopback server on 127.0.0.1 receives
the callback.`,
		Args: cobra.NoArgs,
		RunE: runAuthorize,
	}
}

func runAuthorize(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasGmail() {
		return fmt.Errorf("gmail client credentials not found at %s", cfg.GmailCredentialsPath)
	}

	auth := newAuthenticator(cfg, true)
	if _, err := auth.Authorize(context.Background()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", cfg.GmailTokenPath)
	return nil
}
