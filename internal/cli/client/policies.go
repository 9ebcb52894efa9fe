package client

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type PolicyRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

type PolicyStatus struct {
	PolicyID string `json:"policy_id"`
	Status   string `json:"status"`
}

type Policy struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

type PolicyMatch struct {
	PolicyID string  `json:"policy_id"`
	Title    string  `json:"title"`
	Category string  `json:"category"`
	Content  string  `json:"content"`
	Score    float32 `json:"score"`
}

// PoliciesCmd groups the policy commands.
func PoliciesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Manage company policies",
	}

	cmd.AddCommand(PolicyAddCmd())
	cmd.AddCommand(PolicyUpdateCmd())
	cmd.AddCommand(PolicyGetCmd())
	cmd.AddCommand(PolicySearchCmd())
	cmd.AddCommand(PolicyListCmd())

	return cmd
}

// policyFlags binds the add/update body flags onto fs.
func policyFlags(fs *pflag.FlagSet, req *PolicyRequest, contentFile *string) {
	fs.StringVarP(&req.Title, "title", "t", "", "Policy title")
	fs.StringVarP(&req.Content, "content", "c", "", "Policy text")
	fs.StringVarP(contentFile, "file", "f", "", `Read the policy text from a file ("-" for stdin)`)
	fs.StringVar(&req.Category, "category", "", "Policy category")
	fs.StringSliceVarP(&req.Keywords, "keywords", "k", nil, "Comma-separated keywords")
	fs.SortFlags = false
	_ = cobra.MarkFlagRequired(fs, "title")
}

func loadPolicyContent(stdin io.Reader, req *PolicyRequest, contentFile string) error {
	switch contentFile {
	case "":
		return nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("failed to read content from stdin: %w", err)
		}
		req.Content = string(data)
	default:
		data, err := os.ReadFile(contentFile)
		if err != nil {
			return fmt.Errorf("failed to read content file: %w", err)
		}
		req.Content = string(data)
	}
	return nil
}

func PolicyAddCmd() *cobra.Command {
	var (
		req         PolicyRequest
		contentFile string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a policy and re-index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadPolicyContent(cmd.InOrStdin(), &req, contentFile); err != nil {
				return err
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var resp PolicyStatus
			if err := api.Post("/policies/add", req, &resp); err != nil {
				return fmt.Errorf("add failed: %w", err)
			}
			return printPolicyStatus(cmd, resp)
		},
	}

	policyFlags(cmd.Flags(), &req, &contentFile)
	return cmd
}

func PolicyUpdateCmd() *cobra.Command {
	var (
		req         PolicyRequest
		contentFile string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a policy and re-index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadPolicyContent(cmd.InOrStdin(), &req, contentFile); err != nil {
				return err
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var resp PolicyStatus
			if err := api.Put("/policies/"+url.PathEscape(args[0]), req, &resp); err != nil {
				return fmt.Errorf("update failed: %w", err)
			}
			return printPolicyStatus(cmd, resp)
		},
	}

	policyFlags(cmd.Flags(), &req, &contentFile)
	return cmd
}

func PolicyGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var p Policy
			if err := api.Get("/policies/"+url.PathEscape(args[0]), nil, &p); err != nil {
				return fmt.Errorf("get failed: %w", err)
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), p)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s [%s]\n", p.Title, p.Category)
			fmt.Fprintf(out, "ID: %s\n", p.ID)
			if len(p.Keywords) > 0 {
				fmt.Fprintf(out, "Keywords: %s\n", strings.Join(p.Keywords, ", "))
			}
			fmt.Fprintf(out, "\n%s\n", p.Content)
			return nil
		},
	}
}

func PolicySearchCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the policy passages closest to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			query := url.Values{"query": {args[0]}}
			if k > 0 {
				query.Set("k", strconv.Itoa(k))
			}

			var resp struct {
				Policies []PolicyMatch `json:"policies"`
				Count    int           `json:"count"`
			}
			if err := api.Get("/policies/search", query, &resp); err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			if resp.Count == 0 {
				fmt.Fprintln(out, "No results found.")
				return nil
			}
			for i, m := range resp.Policies {
				fmt.Fprintf(out, "%d. %s (%.2f)\n", i+1, m.Title, m.Score)
				fmt.Fprintf(out, "   %s\n", truncate(m.Content, 100))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "n", 0, "Number of passages (server default when 0)")

	return cmd
}

func PolicyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var resp struct {
				Policies []Policy `json:"policies"`
				Count    int      `json:"count"`
			}
			if err := api.Get("/policies/all", nil, &resp); err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			for _, p := range resp.Policies {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s [%s]\n", p.ID, p.Title, p.Category)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d policies\n", resp.Count)
			return nil
		},
	}
}

func printPolicyStatus(cmd *cobra.Command, resp PolicyStatus) error {
	if outputJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Policy %s %s\n", resp.PolicyID, resp.Status)
	return nil
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
