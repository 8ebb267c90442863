package chain

import (
	"bytes"
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/errors"
	"github.com/R3E-Network/solver_layer/internal/logging"
)

// Host executes transactions against the ledger. Transactions are strictly
// serialized; each one either commits every change it made or none.
type Host struct {
	mu    sync.Mutex
	store *storage.MemCachedStore

	cmu       sync.RWMutex
	contracts map[util.Uint160]Contract

	lmu       sync.RWMutex
	listeners []listenerEntry
	nextID    int64

	log *logging.Logger
}

type listenerEntry struct {
	id int64
	fn func(*ApplicationLog)
}

// NewHost creates an empty host.
func NewHost(log *logging.Logger) *Host {
	if log == nil {
		log = logging.NewDefault("host")
	}
	return &Host{
		store:     storage.NewMemCachedStore(storage.NewMemoryStore()),
		contracts: make(map[util.Uint160]Contract),
		log:       log,
	}
}

// Contract returns the contract deployed at hash.
func (h *Host) Contract(hash util.Uint160) (Contract, bool) {
	h.cmu.RLock()
	defer h.cmu.RUnlock()
	c, ok := h.contracts[hash]
	return c, ok
}

// Contracts lists deployed contract hashes in a stable order.
func (h *Host) Contracts() []util.Uint160 {
	h.cmu.RLock()
	defer h.cmu.RUnlock()
	out := make([]util.Uint160, 0, len(h.contracts))
	for hash := range h.contracts {
		out = append(out, hash)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].BytesBE(), out[j].BytesBE()) < 0 })
	return out
}

// Deploy runs the Deploy hook of c, if any, in a transaction sent by
// deployer and registers c in the same transaction, so no other call sees
// it before its initial storage is committed. A failed hook leaves the
// contract undeployed.
func (h *Host) Deploy(ctx context.Context, deployer util.Uint160, c Contract) (*ApplicationLog, error) {
	hash := c.Hash()
	if IsZero(hash) {
		return nil, errors.InvalidArgument("contract", "zero hash")
	}

	registered := false
	log, err := h.run(ctx, deployer, hash, MethodDeploy, nil, func(root *Tx) ([]byte, error) {
		if _, exists := h.Contract(hash); exists {
			return nil, errors.InvalidArgument("contract", "already deployed").WithDetails("hash", FormatAddress(hash))
		}
		if d, ok := c.(Deployable); ok {
			frame := root.branch(deployer, hash, new(big.Int), 1)
			if err := d.Deploy(frame); err != nil {
				return nil, err
			}
			if err := root.merge(frame); err != nil {
				return nil, err
			}
		}
		h.cmu.Lock()
		h.contracts[hash] = c
		h.cmu.Unlock()
		registered = true
		return nil, nil
	})
	if err != nil {
		if registered {
			h.cmu.Lock()
			delete(h.contracts, hash)
			h.cmu.Unlock()
		}
		return log, err
	}

	h.log.WithField("contract", FormatAddress(hash)).
		WithField("deployer", FormatAddress(deployer)).
		Info("contract deployed")
	return log, nil
}

// Invoke runs call as a transaction sent by sender.
func (h *Host) Invoke(ctx context.Context, sender util.Uint160, call Call) (*ApplicationLog, error) {
	return h.run(ctx, sender, call.To, call.Method, call.Value, func(root *Tx) ([]byte, error) {
		return root.Call(call)
	})
}

// Transfer sends native currency from sender to recipient as a transaction.
func (h *Host) Transfer(ctx context.Context, sender, to util.Uint160, amount *big.Int) (*ApplicationLog, error) {
	return h.run(ctx, sender, to, MethodTransfer, amount, func(root *Tx) ([]byte, error) {
		return nil, root.TransferNative(to, amountOrZero(amount))
	})
}

// Credit adds amount of asset to account outside of any transaction. It is
// meant for genesis allocation.
func (h *Host) Credit(asset, account util.Uint160, amount *big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := newState(h.store)
	if err := st.credit(asset, account, amountOrZero(amount)); err != nil {
		return err
	}
	return st.commit()
}

// BalanceOf reads the committed balance of account in asset.
func (h *Host) BalanceOf(asset, account util.Uint160) *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return newState(h.store).Balance(asset, account)
}

// Storage reads a committed storage value of contract.
func (h *Host) Storage(contract util.Uint160, key string) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return newState(h.store).get(contract, key)
}

// Subscribe registers fn to receive every application log after its
// transaction finished. The returned function unsubscribes.
func (h *Host) Subscribe(fn func(*ApplicationLog)) func() {
	h.lmu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners = append(h.listeners, listenerEntry{id: id, fn: fn})
	h.lmu.Unlock()

	return func() {
		h.lmu.Lock()
		defer h.lmu.Unlock()
		for i, l := range h.listeners {
			if l.id == id {
				h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
				return
			}
		}
	}
}

func (h *Host) run(ctx context.Context, sender, contract util.Uint160, method string, value *big.Int, fn func(root *Tx) ([]byte, error)) (*ApplicationLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	started := time.Now()
	root := &Tx{
		host:   h,
		id:     uuid.NewString(),
		origin: sender,
		caller: sender,
		self:   sender,
		value:  new(big.Int),
		state:  newState(h.store),
	}
	result, err := fn(root)
	if err == nil {
		if cerr := root.state.commit(); cerr != nil {
			err = errors.Internal("commit transaction", cerr)
		}
	}
	h.mu.Unlock()

	log := &ApplicationLog{
		TxID:      root.id,
		Sender:    sender,
		Contract:  contract,
		Method:    method,
		Value:     amountOrZero(value),
		Timestamp: started.UTC(),
		Duration:  time.Since(started),
	}
	if err != nil {
		log.VMState = VMStateFault
		log.Exception = err.Error()
		log.Err = err
	} else {
		log.VMState = VMStateHalt
		log.Result = result
		log.Notifications = root.notes
	}

	h.publish(log)
	return log, err
}

func (h *Host) publish(log *ApplicationLog) {
	h.lmu.RLock()
	listeners := make([]listenerEntry, len(h.listeners))
	copy(listeners, h.listeners)
	h.lmu.RUnlock()

	for _, l := range listeners {
		l.fn(log)
	}
}
