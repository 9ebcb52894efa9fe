package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/cloo-solutions/autoreply/internal/config"
	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/seed"
	"github.com/cloo-solutions/autoreply/internal/storage"
	"github.com/spf13/cobra"
)

func PoliciesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Inspect policy seed documents",
	}

	cmd.AddCommand(SeedCheckCmd())

	return cmd
}

func SeedCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-check [source]",
		Short: "Validate a policy seed document",
		Long: `Parse and validate a policy seed without indexing it. The source is a local
YAML path or s3://bucket/key; it defaults to AUTOREPLY_POLICY_SEED, and to the
built-in policies when that is empty.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSeedCheck,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runSeedCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	source := cfg.PolicySeed
	if len(args) == 1 {
		source = args[0]
	}

	var objects seed.ObjectGetter
	if cfg.HasS3() {
		objects, err = storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
	}

	policies, err := seed.NewLoader(objects).Load(ctx, source)
	if err != nil {
		return err
	}

	return printPolicies(cmd, policies, outputFormat)
}

func printPolicies(cmd *cobra.Command, policies []*domain.Policy, outputFormat string) error {
	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(policies)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tKEYWORDS")
	for _, p := range policies {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", p.ID, p.Title, p.Category, len(p.Keywords))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d policies OK\n", len(policies))
	return nil
}
