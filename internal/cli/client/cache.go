package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

type CacheStats struct {
	Available        bool   `json:"available"`
	ConnectedClients int64  `json:"connected_clients,omitempty"`
	UsedMemory       string `json:"used_memory,omitempty"`
	Hits             int64  `json:"keyspace_hits"`
	Misses           int64  `json:"keyspace_misses"`
	Status           string `json:"status,omitempty"`
	Error            string `json:"error,omitempty"`
}

// CacheCmd groups the reply cache commands.
func CacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the reply cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE:  runCacheStats,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached reply",
		Args:  cobra.NoArgs,
		RunE:  runCacheClear,
	})

	return cmd
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	var resp struct {
		Stats CacheStats `json:"cache_stats"`
	}
	if err := api.Get("/cache/stats", nil, &resp); err != nil {
		return fmt.Errorf("cache stats failed: %w", err)
	}
	if outputJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	s := resp.Stats
	if !s.Available {
		fmt.Fprintln(out, s.Status)
		return nil
	}
	if s.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", s.Error)
		return nil
	}
	fmt.Fprintf(out, "Clients: %d\nMemory: %s\nHits: %d\nMisses: %d\n", s.ConnectedClients, s.UsedMemory, s.Hits, s.Misses)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	var resp StatusMessage
	if err := api.Post("/cache/clear", nil, &resp); err != nil {
		return fmt.Errorf("cache clear failed: %w", err)
	}
	if outputJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	return nil
}
