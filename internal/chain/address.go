// Package chain provides the in-process Neo N3 style host the solver runs on:
// addresses, asset ledger, contract registry and atomic transactions.
package chain

import (
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/errors"
)

// NativeAsset is the ledger key of the native currency.
var NativeAsset = util.Uint160{}

// ParseAddress accepts a Neo N3 address ("N...") or a 40 character
// little-endian script hash, optionally 0x-prefixed.
func ParseAddress(s string) (util.Uint160, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return util.Uint160{}, errors.InvalidArgument("address", "is required")
	}
	if u, err := address.StringToUint160(s); err == nil {
		return u, nil
	}
	u, err := util.Uint160DecodeStringLE(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return util.Uint160{}, errors.InvalidArgument("address", "not a Neo address or script hash").WithDetails("value", s)
	}
	return u, nil
}

// MustParseAddress is ParseAddress for static configuration and tests.
func MustParseAddress(s string) util.Uint160 {
	u, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return u
}

// FormatAddress renders u as a Neo N3 address.
func FormatAddress(u util.Uint160) string {
	return address.Uint160ToString(u)
}

// IsZero reports whether u is the unset address.
func IsZero(u util.Uint160) bool {
	return u.Equals(util.Uint160{})
}

// ScriptHash derives a contract hash from deployment material (a script
// source, a name), the same way Neo derives script hashes.
func ScriptHash(material []byte) util.Uint160 {
	return hash.Hash160(material)
}
