package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/autoreply/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "autoreplyd",
		Short: "Auto email responder daemon",
		Long:  "Auto email responder daemon for running the API server, authorizing Gmail and checking policy seeds",
	}

	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.AuthorizeCmd())
	rootCmd.AddCommand(admin.PoliciesCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
