package chain

import (
	"math/big"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// VM states recorded in application logs.
const (
	VMStateHalt  = "HALT"
	VMStateFault = "FAULT"
)

// Method names used by the host itself.
const (
	MethodDeploy   = "_deploy"
	MethodTransfer = "_transfer"
)

// MaxCallDepth bounds nested contract calls within one transaction.
const MaxCallDepth = 16

// Contract is code deployed on the host. Invoke runs inside a call frame
// whose caller identity is assigned by the host, never by the callee.
type Contract interface {
	Hash() util.Uint160
	Invoke(tx *Tx, call Call) ([]byte, error)
}

// Deployable contracts initialize their storage when deployed.
type Deployable interface {
	Deploy(tx *Tx) error
}

// PaymentReceiver contracts are notified of plain asset transfers to them
// and may reject the payment by returning an error.
type PaymentReceiver interface {
	OnPayment(tx *Tx, from, asset util.Uint160, amount *big.Int) error
}

// Call describes one contract invocation. Payload carries opaque calldata;
// Method == "" with no payload is a bare value transfer (fallback).
type Call struct {
	To      util.Uint160
	Method  string
	Args    []any
	Payload []byte
	Value   *big.Int
}

// Notification is an event emitted by a contract. Notifications of failed
// frames are discarded together with their state.
type Notification struct {
	Contract util.Uint160      `json:"-"`
	Name     string            `json:"name"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// ApplicationLog is the outcome of one host transaction.
type ApplicationLog struct {
	TxID          string
	Sender        util.Uint160
	Contract      util.Uint160
	Method        string
	Value         *big.Int
	VMState       string
	Exception     string
	Err           error
	Result        []byte
	Notifications []Notification
	Timestamp     time.Time
	Duration      time.Duration
}

// Halted reports whether the transaction committed.
func (l *ApplicationLog) Halted() bool {
	return l != nil && l.VMState == VMStateHalt
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
