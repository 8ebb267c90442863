package chain

import (
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/encoding/bigint"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/errors"
)

const (
	prefixBalance byte = 0x01
	prefixStorage byte = 0x02
)

// State is one write layer of the ledger. Each call frame gets its own layer
// over its parent's; a layer reaches the parent only through commit, so a
// failed frame is discarded by simply dropping it.
type State struct {
	store *storage.MemCachedStore
}

func newState(lower storage.Store) *State {
	return &State{store: storage.NewMemCachedStore(lower)}
}

func (s *State) layer() *State {
	return newState(s.store)
}

func (s *State) commit() error {
	_, err := s.store.Persist()
	return err
}

func balanceKey(asset, account util.Uint160) []byte {
	key := make([]byte, 0, 1+2*util.Uint160Size)
	key = append(key, prefixBalance)
	key = append(key, asset.BytesBE()...)
	return append(key, account.BytesBE()...)
}

func storageKey(contract util.Uint160, k string) []byte {
	key := make([]byte, 0, 1+util.Uint160Size+len(k))
	key = append(key, prefixStorage)
	key = append(key, contract.BytesBE()...)
	return append(key, k...)
}

// Balance returns account's holding of asset. Missing entries are zero.
func (s *State) Balance(asset, account util.Uint160) *big.Int {
	v, err := s.store.Get(balanceKey(asset, account))
	if err != nil {
		return new(big.Int)
	}
	return bigint.FromBytes(v)
}

func (s *State) setBalance(asset, account util.Uint160, amount *big.Int) {
	b := bigint.ToBytes(amount)
	if len(b) == 0 {
		b = []byte{0}
	}
	s.store.Put(balanceKey(asset, account), b)
}

func (s *State) credit(asset, to util.Uint160, amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.InvalidArgument("amount", "must not be negative")
	}
	s.setBalance(asset, to, new(big.Int).Add(s.Balance(asset, to), amount))
	return nil
}

func (s *State) move(asset, from, to util.Uint160, amount *big.Int) error {
	switch amount.Sign() {
	case -1:
		return errors.InvalidArgument("amount", "must not be negative")
	case 0:
		return nil
	}
	available := s.Balance(asset, from)
	if available.Cmp(amount) < 0 {
		return errors.InsufficientFunds(available.String(), amount.String())
	}
	s.setBalance(asset, from, new(big.Int).Sub(available, amount))
	s.setBalance(asset, to, new(big.Int).Add(s.Balance(asset, to), amount))
	return nil
}

func (s *State) get(contract util.Uint160, key string) []byte {
	v, err := s.store.Get(storageKey(contract, key))
	if err != nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (s *State) put(contract util.Uint160, key string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	s.store.Put(storageKey(contract, key), v)
}
