package chain

import (
	"math/big"
	"strconv"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/errors"
)

// Token methods.
const (
	TokenMethodSymbol    = "symbol"
	TokenMethodDecimals  = "decimals"
	TokenMethodBalanceOf = "balanceOf"
	TokenMethodTransfer  = "transfer"
	TokenMethodMint      = "mint"
)

// TokenConfig describes a fungible token deployment.
type TokenConfig struct {
	Symbol   string
	Decimals int
	Minter   util.Uint160
	// Hash overrides the derived contract hash when non-zero.
	Hash util.Uint160
	// NonStandard tokens report a failed transfer by returning false
	// instead of faulting.
	NonStandard bool
}

// Token is a NEP-17 style fungible token whose balances live in the host
// ledger under the token's own hash.
type Token struct {
	cfg  TokenConfig
	hash util.Uint160

	mu      sync.RWMutex
	blocked map[util.Uint160]bool
}

// NewToken creates a token contract. Deploy it with Host.Deploy.
func NewToken(cfg TokenConfig) *Token {
	hash := cfg.Hash
	if IsZero(hash) {
		hash = ScriptHash([]byte("token:" + cfg.Symbol))
	}
	return &Token{cfg: cfg, hash: hash, blocked: make(map[util.Uint160]bool)}
}

// Hash implements Contract.
func (t *Token) Hash() util.Uint160 { return t.hash }

// Symbol returns the token symbol.
func (t *Token) Symbol() string { return t.cfg.Symbol }

// Block makes transfers to account fail.
func (t *Token) Block(account util.Uint160) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blocked[account] = true
}

// Unblock reverses Block.
func (t *Token) Unblock(account util.Uint160) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.blocked, account)
}

func (t *Token) isBlocked(account util.Uint160) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.blocked[account]
}

// Invoke implements Contract.
func (t *Token) Invoke(tx *Tx, call Call) ([]byte, error) {
	if tx.Value().Sign() > 0 {
		return nil, errors.InvalidArgument("value", "token does not accept native currency")
	}

	switch call.Method {
	case TokenMethodSymbol:
		return []byte(t.cfg.Symbol), nil

	case TokenMethodDecimals:
		return EncodeInteger(big.NewInt(int64(t.cfg.Decimals))), nil

	case TokenMethodBalanceOf:
		account, err := ArgAddress(call.Args, 0, "account")
		if err != nil {
			return nil, err
		}
		return EncodeInteger(tx.BalanceOf(t.hash, account)), nil

	case TokenMethodTransfer:
		return t.transfer(tx, call)

	case TokenMethodMint:
		if !tx.Caller().Equals(t.cfg.Minter) {
			return nil, errors.Unauthorized("not minter")
		}
		to, err := ArgAddress(call.Args, 0, "to")
		if err != nil {
			return nil, err
		}
		amount, err := ArgAmount(call.Args, 1, "amount")
		if err != nil {
			return nil, err
		}
		if err := tx.MintAsset(to, amount); err != nil {
			return nil, err
		}
		tx.Notify("Transfer", map[string]string{
			"from":   "",
			"to":     FormatAddress(to),
			"amount": amount.String(),
		})
		return EncodeBool(true), nil

	default:
		return nil, errors.NotFound("method", call.Method)
	}
}

func (t *Token) transfer(tx *Tx, call Call) ([]byte, error) {
	to, err := ArgAddress(call.Args, 0, "to")
	if err != nil {
		return nil, err
	}
	amount, err := ArgAmount(call.Args, 1, "amount")
	if err != nil {
		return nil, err
	}
	from := tx.Caller()

	if t.isBlocked(to) {
		return t.fail(errors.Unauthorized("recipient blocked by " + t.cfg.Symbol))
	}
	if err := tx.MoveAsset(from, to, amount); err != nil {
		return t.fail(err)
	}
	tx.Notify("Transfer", map[string]string{
		"from":   FormatAddress(from),
		"to":     FormatAddress(to),
		"amount": amount.String(),
	})
	return EncodeBool(true), nil
}

func (t *Token) fail(err error) ([]byte, error) {
	if t.cfg.NonStandard {
		return EncodeBool(false), nil
	}
	return nil, err
}

// Decimals returns the configured precision as a string, for display.
func (t *Token) Decimals() string {
	return strconv.Itoa(t.cfg.Decimals)
}
