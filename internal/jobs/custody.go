package jobs

import (
	"context"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/logging"
	"github.com/R3E-Network/solver_layer/internal/metrics"
	"github.com/R3E-Network/solver_layer/internal/solver"
)

// CustodySnapshot publishes the solver's native and token holdings as
// gauges and logs them.
type CustodySnapshot struct {
	client *solver.Client
	tokens map[string]util.Uint160
	log    *logging.Logger
}

// NewCustodySnapshot creates the job. tokens maps display symbols to token
// contract hashes.
func NewCustodySnapshot(client *solver.Client, tokens map[string]util.Uint160, log *logging.Logger) *CustodySnapshot {
	return &CustodySnapshot{client: client, tokens: tokens, log: log}
}

func (j *CustodySnapshot) Name() string { return "custody_snapshot" }

// Run reads committed balances; it never submits a transaction.
func (j *CustodySnapshot) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	holdings := j.Holdings()
	fields := logrus.Fields{
		"solver":          chain.FormatAddress(j.client.Hash()),
		"owner":           chain.FormatAddress(j.client.Owner()),
		"delegate_target": chain.FormatAddress(j.client.DelegateTarget()),
	}
	for asset, amount := range holdings {
		metrics.SetCustodyBalance(asset, amount)
		fields["balance_"+asset] = amount.String()
	}
	j.log.WithContext(ctx).WithFields(fields).Info("custody snapshot")
	return nil
}

// Holdings returns the current balance per asset, keyed by symbol; native
// currency is keyed "native".
func (j *CustodySnapshot) Holdings() map[string]*big.Int {
	out := make(map[string]*big.Int, len(j.tokens)+1)
	out["native"] = j.client.NativeBalance()
	for symbol, hash := range j.tokens {
		out[symbol] = j.client.TokenBalance(hash)
	}
	return out
}
