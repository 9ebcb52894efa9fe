package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// HealthCmd checks that the server is up.
func HealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var resp HealthResponse
			if err := api.Get("/health", nil, &resp); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", resp.Status, resp.Timestamp)
			return nil
		},
	}
}
