package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/httpapi"
	"github.com/R3E-Network/solver_layer/internal/logging"
)

func receiptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "Look up transaction receipts",
	}

	var sender, contract, method, vmState string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List receipts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := map[string]string{
				"sender":   sender,
				"contract": contract,
				"method":   method,
				"vm_state": vmState,
			}
			if limit > 0 {
				q["limit"] = strconv.Itoa(limit)
			}
			return get(cmd, "/v1/receipts", q)
		},
	}
	list.Flags().StringVar(&sender, "sender", "", "filter by sender address")
	list.Flags().StringVar(&contract, "contract", "", "filter by contract address")
	list.Flags().StringVar(&method, "method", "", "filter by method")
	list.Flags().StringVar(&vmState, "vm-state", "", "filter by VM state (HALT or FAULT)")
	list.Flags().IntVar(&limit, "limit", 0, "maximum number of receipts")

	cmd.AddCommand(list, &cobra.Command{
		Use:   "get <id|tx-id>",
		Short: "Show one receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get(cmd, "/v1/receipts/"+args[0], nil)
		},
	})
	return cmd
}

func eventsCmd() *cobra.Command {
	var eventType, contract string
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent feed events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := map[string]string{"type": eventType, "contract": contract}
			if limit > 0 {
				q["limit"] = strconv.Itoa(limit)
			}
			return get(cmd, "/v1/events", q)
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type, e.g. Executed")
	cmd.Flags().StringVar(&contract, "contract", "", "filter by emitting contract")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API bearer tokens",
	}

	var secret, issuer, role string
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue <address>",
		Short: "Sign a bearer token whose subject is address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(secret) < 16 {
				return fmt.Errorf("--secret must be at least 16 bytes")
			}
			subject, err := chain.ParseAddress(args[0])
			if err != nil {
				return err
			}
			auth := httpapi.NewAuthenticator(secret, issuer, ttl, logging.NewDiscard("solverctl"), nil)
			signed, err := auth.Issue(subject, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	issue.Flags().StringVar(&secret, "secret", envOr("SOLVER_JWT_SECRET", ""), "shared HS256 secret (default $SOLVER_JWT_SECRET)")
	issue.Flags().StringVar(&issuer, "issuer", "solver-layer", "token issuer")
	issue.Flags().StringVar(&role, "role", "", "role claim")
	issue.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	cmd.AddCommand(issue)
	return cmd
}
