package chain

import (
	"fmt"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/errors"
)

// Tx is a call frame inside a host transaction. It exposes the identity of
// the executing contract (Self), of whoever invoked it (Caller) and of the
// account that signed the transaction (Origin).
type Tx struct {
	host   *Host
	id     string
	origin util.Uint160
	caller util.Uint160
	self   util.Uint160
	value  *big.Int
	state  *State
	notes  []Notification
	depth  int
}

// ID returns the transaction identifier shared by all frames.
func (tx *Tx) ID() string { return tx.id }

// Origin returns the transaction sender.
func (tx *Tx) Origin() util.Uint160 { return tx.origin }

// Caller returns the account or contract that invoked this frame.
func (tx *Tx) Caller() util.Uint160 { return tx.caller }

// Self returns the hash of the executing contract.
func (tx *Tx) Self() util.Uint160 { return tx.self }

// Value returns the native amount attached to this frame.
func (tx *Tx) Value() *big.Int { return new(big.Int).Set(tx.value) }

// Depth returns the call depth of this frame.
func (tx *Tx) Depth() int { return tx.depth }

// BalanceOf reads account's balance of asset as seen by this frame.
func (tx *Tx) BalanceOf(asset, account util.Uint160) *big.Int {
	return tx.state.Balance(asset, account)
}

// Get reads a key from the executing contract's storage.
func (tx *Tx) Get(key string) []byte {
	return tx.state.get(tx.self, key)
}

// Put writes a key to the executing contract's storage.
func (tx *Tx) Put(key string, value []byte) {
	tx.state.put(tx.self, key, value)
}

// Notify emits an event from the executing contract.
func (tx *Tx) Notify(name string, fields map[string]string) {
	tx.notes = append(tx.notes, Notification{Contract: tx.self, Name: name, Fields: fields})
}

func (tx *Tx) branch(caller, self util.Uint160, value *big.Int, depth int) *Tx {
	return &Tx{
		host:   tx.host,
		id:     tx.id,
		origin: tx.origin,
		caller: caller,
		self:   self,
		value:  value,
		state:  tx.state.layer(),
		depth:  depth,
	}
}

func (tx *Tx) merge(child *Tx) error {
	if err := child.state.commit(); err != nil {
		return errors.Internal("commit call frame", err)
	}
	tx.notes = append(tx.notes, child.notes...)
	return nil
}

// Call invokes another contract with the executing contract as caller. Any
// attached value moves from Self to the callee before the callee runs. If
// the callee fails, none of its effects (including the value move) persist.
func (tx *Tx) Call(c Call) ([]byte, error) {
	if tx.depth+1 > MaxCallDepth {
		return nil, errors.Internal("max call depth exceeded", nil)
	}
	contract, ok := tx.host.Contract(c.To)
	if !ok {
		return nil, errors.NotFound("contract", FormatAddress(c.To))
	}
	value := amountOrZero(c.Value)
	if value.Sign() < 0 {
		return nil, errors.InvalidArgument("value", "must not be negative")
	}

	child := tx.branch(tx.self, c.To, value, tx.depth+1)
	if err := child.state.move(NativeAsset, tx.self, c.To, value); err != nil {
		return nil, err
	}
	result, err := invoke(contract, child, c)
	if err != nil {
		return nil, err
	}
	if err := tx.merge(child); err != nil {
		return nil, err
	}
	return result, nil
}

// TransferNative sends native currency from Self to the recipient. A
// recipient contract implementing PaymentReceiver may reject the payment.
func (tx *Tx) TransferNative(to util.Uint160, amount *big.Int) error {
	return tx.transfer(NativeAsset, tx.self, to, amount)
}

// MoveAsset moves units of the asset implemented by the executing contract.
// Token contracts use it to settle their own ledger.
func (tx *Tx) MoveAsset(from, to util.Uint160, amount *big.Int) error {
	return tx.transfer(tx.self, from, to, amount)
}

// MintAsset creates units of the asset implemented by the executing contract.
func (tx *Tx) MintAsset(to util.Uint160, amount *big.Int) error {
	return tx.state.credit(tx.self, to, amountOrZero(amount))
}

func (tx *Tx) transfer(asset, from, to util.Uint160, amount *big.Int) error {
	if amount == nil {
		return errors.InvalidArgument("amount", "is required")
	}
	frame := tx.branch(tx.caller, tx.self, tx.value, tx.depth)
	if err := frame.state.move(asset, from, to, amount); err != nil {
		return err
	}

	if c, ok := tx.host.Contract(to); ok {
		if receiver, ok := c.(PaymentReceiver); ok {
			if tx.depth+1 > MaxCallDepth {
				return errors.Internal("max call depth exceeded", nil)
			}
			hook := frame.branch(tx.self, to, new(big.Int), tx.depth+1)
			if err := onPayment(receiver, hook, from, asset, amount); err != nil {
				return err
			}
			if err := frame.merge(hook); err != nil {
				return err
			}
		}
	}
	return tx.merge(frame)
}

func invoke(c Contract, tx *Tx, call Call) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Internal("contract panicked", fmt.Errorf("%v", r))
		}
	}()
	return c.Invoke(tx, call)
}

func onPayment(r PaymentReceiver, tx *Tx, from, asset util.Uint160, amount *big.Int) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Internal("payment hook panicked", fmt.Errorf("%v", p))
		}
	}()
	return r.OnPayment(tx, from, asset, new(big.Int).Set(amount))
}
