// Package solver implements the solver contract: an orchestrator-triggered
// execution gate that forwards opaque payloads to an owner-configured
// delegate target and custodies native and token balances for its owner.
//
// The contract runs on the chain.Host. Owner, orchestrator and delegate
// target live in the contract's own storage, so every mutation is rolled
// back together with the call that made it.
package solver

import (
	"math/big"
	"strconv"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/errors"
)

// Contract methods.
const (
	MethodTrigger           = "trigger"
	MethodExecute           = "execute"
	MethodSetDelegateTarget = "setDelegateTarget"
	MethodWithdrawNative    = "withdrawNative"
	MethodWithdrawToken     = "withdrawToken"
	MethodTransferOwnership = "transferOwnership"
	MethodRenounceOwnership = "renounceOwnership"
	MethodOwner             = "owner"
	MethodDelegateTarget    = "delegateTarget"
	MethodOrchestrator      = "orchestrator"
)

// Notifications emitted by the contract.
const (
	EventTriggered            = "Triggered"
	EventExecuted             = "Executed"
	EventDelegateTargetSet    = "DelegateTargetSet"
	EventNativeWithdrawn      = "NativeWithdrawn"
	EventTokenWithdrawn       = "TokenWithdrawn"
	EventOwnershipTransferred = "OwnershipTransferred"
	EventReceived             = "Received"
)

const (
	keyOwner          = "owner"
	keyOrchestrator   = "orchestrator"
	keyDelegateTarget = "delegate_target"
)

// Config holds the deployment parameters of a solver.
type Config struct {
	// Hash is the contract hash; derived from owner and orchestrator when zero.
	Hash           util.Uint160
	Owner          util.Uint160
	Orchestrator   util.Uint160
	DelegateTarget util.Uint160
}

// Solver is the solver contract.
type Solver struct {
	cfg  Config
	gate Gate
	lock Lock
}

// New validates cfg and returns an undeployed solver.
func New(cfg Config) (*Solver, error) {
	if chain.IsZero(cfg.Owner) {
		return nil, errors.InvalidArgument("owner", "zero address")
	}
	if chain.IsZero(cfg.Orchestrator) {
		return nil, errors.InvalidArgument("orchestrator", "zero address")
	}
	if chain.IsZero(cfg.Hash) {
		cfg.Hash = chain.ScriptHash([]byte("solver:" + cfg.Owner.StringLE() + ":" + cfg.Orchestrator.StringLE()))
	}
	return &Solver{cfg: cfg}, nil
}

// Hash implements chain.Contract.
func (s *Solver) Hash() util.Uint160 {
	return s.cfg.Hash
}

// Locked reports whether a guarded call is in flight.
func (s *Solver) Locked() bool {
	return s.lock.Held()
}

// Deploy implements chain.Deployable.
func (s *Solver) Deploy(tx *chain.Tx) error {
	writeAddress(tx, keyOwner, s.cfg.Owner)
	writeAddress(tx, keyOrchestrator, s.cfg.Orchestrator)
	writeAddress(tx, keyDelegateTarget, s.cfg.DelegateTarget)
	tx.Notify(EventOwnershipTransferred, map[string]string{
		"previous_owner": "",
		"new_owner":      chain.FormatAddress(s.cfg.Owner),
	})
	return nil
}

// Invoke implements chain.Contract.
func (s *Solver) Invoke(tx *chain.Tx, call chain.Call) ([]byte, error) {
	switch call.Method {
	case MethodTrigger:
		return s.trigger(tx, call)
	case MethodExecute:
		return s.execute(tx, call)
	case "":
		if len(call.Payload) > 0 {
			return nil, errors.NotFound("method", "")
		}
		s.receive(tx, tx.Caller(), chain.NativeAsset, tx.Value())
		return nil, nil
	}

	if tx.Value().Sign() > 0 {
		return nil, errors.InvalidArgument("value", call.Method+" is not payable")
	}

	switch call.Method {
	case MethodSetDelegateTarget:
		return nil, s.setDelegateTarget(tx, call)
	case MethodWithdrawNative:
		return nil, s.withdrawNative(tx, call)
	case MethodWithdrawToken:
		return nil, s.withdrawToken(tx, call)
	case MethodTransferOwnership:
		return nil, s.transferOwnership(tx, call)
	case MethodRenounceOwnership:
		return nil, s.renounceOwnership(tx)
	case MethodOwner:
		return readAddress(tx, keyOwner).BytesBE(), nil
	case MethodDelegateTarget:
		return readAddress(tx, keyDelegateTarget).BytesBE(), nil
	case MethodOrchestrator:
		return readAddress(tx, keyOrchestrator).BytesBE(), nil
	default:
		return nil, errors.NotFound("method", call.Method)
	}
}

// OnPayment implements chain.PaymentReceiver. Receipt is unconditional.
func (s *Solver) OnPayment(tx *chain.Tx, from, asset util.Uint160, amount *big.Int) error {
	s.receive(tx, from, asset, amount)
	return nil
}

func (s *Solver) receive(tx *chain.Tx, from, asset util.Uint160, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	tx.Notify(EventReceived, map[string]string{
		"from":   chain.FormatAddress(from),
		"asset":  assetName(asset),
		"amount": amount.String(),
	})
}

// trigger is the orchestrator-facing entry point. The reentrancy lock is
// taken before anything else, so a delegate target calling back into
// trigger sees ReentrantCall rather than an authorization failure.
func (s *Solver) trigger(tx *chain.Tx, call chain.Call) ([]byte, error) {
	release, err := s.lock.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if !tx.Caller().Equals(readAddress(tx, keyOrchestrator)) {
		return nil, errors.Unauthorized("caller is not the orchestrator")
	}
	owner := readAddress(tx, keyOwner)
	if chain.IsZero(owner) {
		return nil, errors.Unauthorized("ownership renounced")
	}
	from, err := chain.ArgAddress(call.Args, 0, "from")
	if err != nil {
		return nil, err
	}
	if !from.Equals(owner) {
		return nil, errors.Unauthorized("request not from owner")
	}

	capability, revoke := s.gate.Mint()
	defer revoke()

	tx.Notify(EventTriggered, map[string]string{
		"orchestrator": chain.FormatAddress(tx.Caller()),
		"from":         chain.FormatAddress(from),
		"value":        tx.Value().String(),
	})

	return tx.Call(chain.Call{
		To:      s.Hash(),
		Method:  MethodExecute,
		Args:    []any{capability},
		Payload: call.Payload,
		Value:   tx.Value(),
	})
}

// execute is the guarded business logic, reachable only through trigger's
// self-call.
func (s *Solver) execute(tx *chain.Tx, call chain.Call) ([]byte, error) {
	var capability *Capability
	if len(call.Args) > 0 {
		capability, _ = call.Args[0].(*Capability)
	}
	if err := s.gate.Check(tx, capability); err != nil {
		return nil, err
	}

	result, err := s.forward(tx, call.Payload)
	if err != nil {
		return nil, err
	}
	tx.Notify(EventExecuted, map[string]string{
		"target":       chain.FormatAddress(readAddress(tx, keyDelegateTarget)),
		"value":        tx.Value().String(),
		"payload_size": strconv.Itoa(len(call.Payload)),
	})
	return result, nil
}

func readAddress(tx *chain.Tx, key string) util.Uint160 {
	u, err := util.Uint160DecodeBytesBE(tx.Get(key))
	if err != nil {
		return util.Uint160{}
	}
	return u
}

func writeAddress(tx *chain.Tx, key string, u util.Uint160) {
	tx.Put(key, u.BytesBE())
}

func assetName(asset util.Uint160) string {
	if chain.IsZero(asset) {
		return "native"
	}
	return chain.FormatAddress(asset)
}
