package commands

import (
	"net/http"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the solver's configuration and native balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return get(cmd, "/v1/solver", nil)
		},
	}
}

func triggerCmd() *cobra.Command {
	var from, payload, value string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Trigger execution as the orchestrator on behalf of the owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/solver/trigger", map[string]string{
				"from":    from,
				"payload": payload,
				"value":   value,
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "address the request is made on behalf of (the owner)")
	cmd.Flags().StringVar(&payload, "payload", "", "hex payload forwarded to the delegate target")
	cmd.Flags().StringVar(&value, "value", "0", "native value attached to the call")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func depositCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Send native value to the solver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/solver/deposit", map[string]string{"value": args[0]})
		},
	}
}

func setTargetCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "set-target [address]",
		Short: "Change the delegate target (owner only)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			} else if !clear {
				return cmd.Usage()
			}
			return call(cmd, http.MethodPut, "/v1/solver/delegate-target", map[string]string{"target": target})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "unset the delegate target")
	return cmd
}

func withdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Sweep solver balances to a recipient (owner only)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "native <recipient>",
		Short: "Sweep the whole native balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/solver/withdrawals/native", map[string]string{"recipient": args[0]})
		},
	}, &cobra.Command{
		Use:   "token <token> <recipient>",
		Short: "Sweep the whole balance of a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/solver/withdrawals/token", map[string]string{
				"token":     args[0],
				"recipient": args[1],
			})
		},
	})
	return cmd
}

func ownershipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ownership",
		Short: "Manage solver ownership (owner only)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "transfer <new-owner>",
		Short: "Transfer ownership to another address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPut, "/v1/solver/ownership", map[string]string{"new_owner": args[0]})
		},
	}, &cobra.Command{
		Use:   "renounce",
		Short: "Give up ownership; owner-only operations become unavailable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodDelete, "/v1/solver/ownership", nil)
		},
	})
	return cmd
}

func balanceCmd() *cobra.Command {
	var asset string
	cmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Show an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get(cmd, "/v1/balances/"+args[0], map[string]string{"asset": asset})
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "token address (default native)")
	return cmd
}
