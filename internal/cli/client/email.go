package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type SendRequest struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Priority string `json:"priority,omitempty"`
}

type BatchRequest struct {
	Emails   []SendRequest `json:"emails"`
	UseCache *bool         `json:"use_cache,omitempty"`
}

type PreviewRequest struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Priority string `json:"priority,omitempty"`
	UseCache *bool  `json:"use_cache,omitempty"`
}

type SentEmail struct {
	ID                string   `json:"id"`
	Status            string   `json:"status"`
	GeneratedResponse string   `json:"generated_response"`
	PoliciesUsed      []string `json:"policies_used"`
	Timestamp         string   `json:"timestamp"`
}

type PreviewResponse struct {
	Response     string   `json:"response"`
	PoliciesUsed []string `json:"policies_used"`
	Priority     string   `json:"priority"`
}

type InboxMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	Snippet   string `json:"snippet"`
	Timestamp string `json:"timestamp"`
}

type InboxResponse struct {
	Emails []InboxMessage `json:"emails"`
	Count  int            `json:"count"`
}

type StatusMessage struct {
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// SendCmd drafts and sends a single reply.
func SendCmd() *cobra.Command {
	var req SendRequest

	cmd := &cobra.Command{
		Use:   "send <to>",
		Short: "Draft a policy-grounded reply and send it",
		Long: `Draft a reply to the given subject and body and send it to <to>.
The body is read from stdin when --body is "-".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.To = args[0]
			body, err := readBody(cmd.InOrStdin(), req.Body)
			if err != nil {
				return err
			}
			req.Body = body

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var sent SentEmail
			if err := api.Post("/emails/send", req, &sent); err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), sent)
			}
			printSent(cmd.OutOrStdout(), sent)
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Subject, "subject", "s", "", "Subject of the email being answered")
	cmd.Flags().StringVarP(&req.Body, "body", "b", "", `Body of the email being answered ("-" for stdin)`)
	cmd.Flags().StringVar(&req.Priority, "priority", "", "low, normal, high or urgent")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("body")

	return cmd
}

// BatchCmd sends every email in a JSON file.
func BatchCmd() *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Send replies for a JSON list of emails",
		Long: `Send replies for every entry of a JSON array of {to, subject, body, priority}
objects. Emails are sent in order and the batch stops at the first failure.
Use "-" to read the file from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			emails, err := readBatchFile(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			req := BatchRequest{Emails: emails}
			if noCache {
				req.UseCache = boolPtr(false)
			}

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var sent []SentEmail
			if err := api.Post("/emails/batch", req, &sent); err != nil {
				return fmt.Errorf("batch failed: %w", err)
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), sent)
			}
			for i, s := range sent {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), strings.Repeat("-", 40))
				}
				printSent(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Always generate fresh replies")

	return cmd
}

// PreviewCmd drafts a reply without sending it.
func PreviewCmd() *cobra.Command {
	var (
		req     PreviewRequest
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Draft a reply without sending it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readBody(cmd.InOrStdin(), req.Body)
			if err != nil {
				return err
			}
			req.Body = body
			if noCache {
				req.UseCache = boolPtr(false)
			}

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var resp PreviewResponse
			if err := api.Post("/emails/preview", req, &resp); err != nil {
				return fmt.Errorf("preview failed: %w", err)
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Response)
			fmt.Fprintf(out, "\nPriority: %s\n", resp.Priority)
			fmt.Fprintf(out, "Policies: %s\n", strings.Join(resp.PoliciesUsed, ", "))
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Subject, "subject", "s", "", "Subject of the email being answered")
	cmd.Flags().StringVarP(&req.Body, "body", "b", "", `Body of the email being answered ("-" for stdin)`)
	cmd.Flags().StringVar(&req.Priority, "priority", "", "low, normal, high or urgent")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Always generate a fresh reply")

	return cmd
}

// InboxCmd lists recent inbox messages.
func InboxCmd() *cobra.Command {
	var maxResults int

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List recent inbox messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			query := url.Values{}
			if maxResults > 0 {
				query.Set("max_results", strconv.Itoa(maxResults))
			}

			var resp InboxResponse
			if err := api.Get("/emails/inbox", query, &resp); err != nil {
				return fmt.Errorf("inbox failed: %w", err)
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			if resp.Count == 0 {
				fmt.Fprintln(out, "Inbox is empty.")
				return nil
			}
			for _, m := range resp.Emails {
				fmt.Fprintf(out, "%s  %-30s  %s\n", m.ID, m.Sender, m.Subject)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&maxResults, "max", "n", 0, "Maximum number of messages (server default when 0)")

	return cmd
}

// ProcessInboxCmd starts a background inbox run on the server.
func ProcessInboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-inbox",
		Short: "Reply to inbox messages in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var resp StatusMessage
			if err := api.Post("/emails/process-inbox", nil, &resp); err != nil {
				return fmt.Errorf("process-inbox failed: %w", err)
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
}

func printSent(w io.Writer, s SentEmail) {
	fmt.Fprintf(w, "Sent %s (%s)\n", s.ID, s.Timestamp)
	fmt.Fprintf(w, "Policies: %s\n\n", strings.Join(s.PoliciesUsed, ", "))
	fmt.Fprintln(w, s.GeneratedResponse)
}

func readBody(stdin io.Reader, body string) (string, error) {
	if body != "-" {
		return body, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read body from stdin: %w", err)
	}
	return string(data), nil
}

func readBatchFile(stdin io.Reader, path string) ([]SendRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var emails []SendRequest
	if err := json.Unmarshal(data, &emails); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	return emails, nil
}

func boolPtr(v bool) *bool {
	return &v
}
