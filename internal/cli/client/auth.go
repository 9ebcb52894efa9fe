package client

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// AuthCmd creates the auth parent command
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage API credentials",
		Long:  "Store, clear and inspect the API key and URL used by the autoreply CLI",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

// AuthLoginCmd creates the auth login command
func AuthLoginCmd() *cobra.Command {
	var apiKey string
	var apiURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store API credentials",
		Long:  "Store the API key and URL in the global config (autoreply/config.json under the user config directory)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := SaveGlobalConfig(&GlobalConfig{APIKey: apiKey, APIURL: apiURL}); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials saved")
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "key", "", "API key (AUTOREPLY_API_KEY on the server)")
	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "API URL")

	return cmd
}

// AuthLogoutCmd creates the auth logout command
func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials removed")
			return nil
		},
	}
}

// AuthStatusCmd creates the auth status command
func AuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which credentials are in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flagKey, _ := cmd.Flags().GetString("api-key")
			flagURL, _ := cmd.Flags().GetString("api-url")
			source, apiKey, apiURL, err := ResolveCredentials(flagKey, flagURL)
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), outputJSON(cmd), source, apiKey, apiURL)
		},
	}
}

func writeStatus(w io.Writer, asJSON bool, source CredentialSource, apiKey, apiURL string) error {
	if asJSON {
		data, err := json.MarshalIndent(map[string]interface{}{
			"source":  string(source),
			"api_key": maskAPIKey(apiKey),
			"api_url": apiURL,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintf(w, "Source: %s\n", source)
	fmt.Fprintf(w, "API URL: %s\n", apiURL)
	fmt.Fprintf(w, "API Key: %s\n", maskAPIKey(apiKey))
	return nil
}

func maskAPIKey(key string) string {
	switch {
	case key == "":
		return "(none)"
	case len(key) < 8:
		return "***"
	default:
		return key[:4] + "..." + key[len(key)-4:]
	}
}
