package solver

import (
	"context"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/logging"
)

// Status is a read-only snapshot of a deployed solver.
type Status struct {
	Hash           string `json:"hash"`
	Owner          string `json:"owner"`
	Orchestrator   string `json:"orchestrator"`
	DelegateTarget string `json:"delegate_target"`
	NativeBalance  string `json:"native_balance"`
	Locked         bool   `json:"locked"`
}

// Client submits solver transactions to a host on behalf of a sender.
type Client struct {
	host   *chain.Host
	solver *Solver
	log    *logging.Logger
}

// Deploy creates a solver from cfg, deploys it on host and returns a client
// bound to it.
func Deploy(ctx context.Context, host *chain.Host, deployer util.Uint160, cfg Config, log *logging.Logger) (*Client, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := host.Deploy(ctx, deployer, s); err != nil {
		return nil, err
	}
	return NewClient(host, s, log), nil
}

// NewClient wraps an already deployed solver.
func NewClient(host *chain.Host, s *Solver, log *logging.Logger) *Client {
	if log == nil {
		log = logging.NewDefault("solver")
	}
	return &Client{host: host, solver: s, log: log}
}

// Hash returns the solver contract hash.
func (c *Client) Hash() util.Uint160 {
	return c.solver.Hash()
}

// Host returns the host the solver is deployed on.
func (c *Client) Host() *chain.Host {
	return c.host
}

// Trigger submits an orchestrator request made on behalf of from.
func (c *Client) Trigger(ctx context.Context, sender, from util.Uint160, payload []byte, value *big.Int) (*chain.ApplicationLog, error) {
	return c.invoke(ctx, sender, chain.Call{Method: MethodTrigger, Args: []any{from}, Payload: payload, Value: value})
}

// Execute calls the guarded entry point directly. Outside of trigger's own
// self-call it always fails.
func (c *Client) Execute(ctx context.Context, sender util.Uint160, payload []byte) (*chain.ApplicationLog, error) {
	return c.invoke(ctx, sender, chain.Call{Method: MethodExecute, Payload: payload})
}

// SetDelegateTarget replaces the delegate target.
func (c *Client) SetDelegateTarget(ctx context.Context, sender, target util.Uint160) (*chain.ApplicationLog, error) {
	return c.invoke(ctx, sender, chain.Call{Method: MethodSetDelegateTarget, Args: []any{target}})
}

// WithdrawNative sweeps the native balance to recipient.
func (c *Client) WithdrawNative(ctx context.Context, sender, recipient util.Uint160) (*chain.ApplicationLog, error) {
	return c.invoke(ctx, sender, chain.Call{Method: MethodWithdrawNative, Args: []any{recipient}})
}

// WithdrawToken sweeps the balance of token to recipient.
func (c *Client) WithdrawToken(ctx context.Context, sender, token, recipient util.Uint160) (*chain.ApplicationLog, error) {
	return c.invoke(ctx, sender, chain.Call{Method: MethodWithdrawToken, Args: []any{token, recipient}})
}

// TransferOwnership hands the owner role to newOwner.
func (c *Client) TransferOwnership(ctx context.Context, sender, newOwner util.Uint160) (*chain.ApplicationLog, error) {
	return c.invoke(ctx, sender, chain.Call{Method: MethodTransferOwnership, Args: []any{newOwner}})
}

// RenounceOwnership clears the owner role permanently.
func (c *Client) RenounceOwnership(ctx context.Context, sender util.Uint160) (*chain.ApplicationLog, error) {
	return c.invoke(ctx, sender, chain.Call{Method: MethodRenounceOwnership})
}

// Deposit sends plain native value to the solver.
func (c *Client) Deposit(ctx context.Context, sender util.Uint160, amount *big.Int) (*chain.ApplicationLog, error) {
	return c.invoke(ctx, sender, chain.Call{Value: amount})
}

// Owner returns the committed owner; zero once renounced.
func (c *Client) Owner() util.Uint160 {
	return c.read(keyOwner)
}

// Orchestrator returns the committed orchestrator.
func (c *Client) Orchestrator() util.Uint160 {
	return c.read(keyOrchestrator)
}

// DelegateTarget returns the committed delegate target.
func (c *Client) DelegateTarget() util.Uint160 {
	return c.read(keyDelegateTarget)
}

// NativeBalance returns the solver's committed native balance.
func (c *Client) NativeBalance() *big.Int {
	return c.host.BalanceOf(chain.NativeAsset, c.Hash())
}

// TokenBalance returns the solver's committed balance of token.
func (c *Client) TokenBalance(token util.Uint160) *big.Int {
	return c.host.BalanceOf(token, c.Hash())
}

// Status returns a snapshot of the solver.
func (c *Client) Status() Status {
	owner := ""
	if o := c.Owner(); !chain.IsZero(o) {
		owner = chain.FormatAddress(o)
	}
	return Status{
		Hash:           chain.FormatAddress(c.Hash()),
		Owner:          owner,
		Orchestrator:   chain.FormatAddress(c.Orchestrator()),
		DelegateTarget: chain.FormatAddress(c.DelegateTarget()),
		NativeBalance:  c.NativeBalance().String(),
		Locked:         c.solver.Locked(),
	}
}

func (c *Client) read(key string) util.Uint160 {
	u, err := util.Uint160DecodeBytesBE(c.host.Storage(c.Hash(), key))
	if err != nil {
		return util.Uint160{}
	}
	return u
}

func (c *Client) invoke(ctx context.Context, sender util.Uint160, call chain.Call) (*chain.ApplicationLog, error) {
	call.To = c.Hash()
	method := call.Method
	if method == "" {
		method = "receive"
	}
	entry := c.log.WithContext(ctx).
		WithField("method", method).
		WithField("sender", chain.FormatAddress(sender))

	log, err := c.host.Invoke(ctx, sender, call)
	if err != nil {
		entry.WithError(err).Warn("solver call faulted")
		return log, err
	}
	entry.WithField("tx_id", log.TxID).Debug("solver call halted")
	return log, nil
}
