package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	field     string
	timeout   time.Duration

	api *Client
)

// Execute runs the CLI.
func Execute() error {
	return NewRoot().Execute()
}

// NewRoot builds the command tree.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "solverctl",
		Short:         "Command line client for solverd",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			api = NewClient(serverURL, token, timeout)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&serverURL, "server", envOr("SOLVER_URL", "http://127.0.0.1:8080"), "solverd base URL")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("SOLVER_TOKEN"), "bearer token (default $SOLVER_TOKEN)")
	root.PersistentFlags().StringVar(&field, "field", "", "print only this gjson path of the response")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(
		statusCmd(),
		triggerCmd(),
		depositCmd(),
		setTargetCmd(),
		withdrawCmd(),
		ownershipCmd(),
		balanceCmd(),
		receiptsCmd(),
		eventsCmd(),
		tokenCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// printResponse writes the selected part of a response to the command's output.
func printResponse(cmd *cobra.Command, data []byte) error {
	out, err := Select(data, field)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func call(cmd *cobra.Command, method, path string, body interface{}) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	data, err := api.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	return printResponse(cmd, data)
}

func get(cmd *cobra.Command, path string, query map[string]string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	data, err := api.Get(ctx, path, query)
	if err != nil {
		return err
	}
	return printResponse(cmd, data)
}
