package chain

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/bigint"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/errors"
)

func arg(args []any, i int, name string) (any, error) {
	if i >= len(args) || args[i] == nil {
		return nil, errors.InvalidArgument(name, "is required")
	}
	return args[i], nil
}

// ArgAddress decodes argument i as an address.
func ArgAddress(args []any, i int, name string) (util.Uint160, error) {
	v, err := arg(args, i, name)
	if err != nil {
		return util.Uint160{}, err
	}
	switch a := v.(type) {
	case util.Uint160:
		return a, nil
	case string:
		return ParseAddress(a)
	default:
		return util.Uint160{}, errors.InvalidArgument(name, "expected address")
	}
}

// ArgAmount decodes argument i as a non-negative integer amount.
func ArgAmount(args []any, i int, name string) (*big.Int, error) {
	v, err := arg(args, i, name)
	if err != nil {
		return nil, err
	}
	var n *big.Int
	switch a := v.(type) {
	case *big.Int:
		n = new(big.Int).Set(a)
	case int64:
		n = big.NewInt(a)
	case int:
		n = big.NewInt(int64(a))
	case string:
		var ok bool
		n, ok = new(big.Int).SetString(strings.TrimSpace(a), 10)
		if !ok {
			return nil, errors.InvalidArgument(name, "expected decimal integer")
		}
	default:
		return nil, errors.InvalidArgument(name, "expected integer")
	}
	if n.Sign() < 0 {
		return nil, errors.InvalidArgument(name, "must not be negative")
	}
	return n, nil
}

// ArgBytes decodes argument i as a byte string. Strings are read as hex.
func ArgBytes(args []any, i int, name string) ([]byte, error) {
	if i >= len(args) || args[i] == nil {
		return nil, nil
	}
	switch a := args[i].(type) {
	case []byte:
		return a, nil
	case string:
		b, err := hex.DecodeString(strings.TrimPrefix(a, "0x"))
		if err != nil {
			return nil, errors.InvalidArgument(name, "expected hex string")
		}
		return b, nil
	default:
		return nil, errors.InvalidArgument(name, "expected bytes")
	}
}

// EncodeInteger encodes n the way contracts return integers.
func EncodeInteger(n *big.Int) []byte {
	return bigint.ToBytes(n)
}

// DecodeInteger is the inverse of EncodeInteger.
func DecodeInteger(b []byte) *big.Int {
	return bigint.FromBytes(b)
}

// EncodeBool encodes b as a single byte.
func EncodeBool(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeBool decodes a contract boolean result. ok is false when result is
// empty, meaning the callee returned nothing.
func DecodeBool(result []byte) (value, ok bool) {
	if len(result) == 0 {
		return false, false
	}
	for _, b := range result {
		if b != 0 {
			return true, true
		}
	}
	return false, true
}
