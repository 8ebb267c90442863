package solver

import (
	stderrors "errors"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/errors"
)

var errTransferReturnedFalse = stderrors.New("token transfer returned false")

// withdrawNative sweeps the solver's entire native balance to recipient.
func (s *Solver) withdrawNative(tx *chain.Tx, call chain.Call) error {
	if err := s.onlyOwner(tx); err != nil {
		return err
	}
	recipient, err := recipientArg(tx, call.Args, 0)
	if err != nil {
		return err
	}

	amount := tx.BalanceOf(chain.NativeAsset, tx.Self())
	if err := tx.TransferNative(recipient, amount); err != nil {
		return errors.TransferFailed("native", err)
	}
	tx.Notify(EventNativeWithdrawn, map[string]string{
		"recipient": chain.FormatAddress(recipient),
		"amount":    amount.String(),
	})
	return nil
}

// withdrawToken sweeps the solver's entire balance of token to recipient.
// The balance is what the token contract reports, and the transfer counts as
// failed when the token faults or explicitly returns false.
func (s *Solver) withdrawToken(tx *chain.Tx, call chain.Call) error {
	if err := s.onlyOwner(tx); err != nil {
		return err
	}
	token, err := chain.ArgAddress(call.Args, 0, "token")
	if err != nil {
		return err
	}
	if chain.IsZero(token) {
		return errors.InvalidArgument("token", "zero address")
	}
	recipient, err := recipientArg(tx, call.Args, 1)
	if err != nil {
		return err
	}

	asset := chain.FormatAddress(token)
	amount, err := tokenBalance(tx, token)
	if err != nil {
		return errors.TransferFailed(asset, err)
	}
	if err := safeTransfer(tx, token, recipient, amount); err != nil {
		return errors.TransferFailed(asset, err)
	}
	tx.Notify(EventTokenWithdrawn, map[string]string{
		"token":     asset,
		"recipient": chain.FormatAddress(recipient),
		"amount":    amount.String(),
	})
	return nil
}

// recipientArg rejects the solver itself: a self-sweep would leave the
// balance in place.
func recipientArg(tx *chain.Tx, args []any, i int) (util.Uint160, error) {
	recipient, err := chain.ArgAddress(args, i, "recipient")
	if err != nil {
		return util.Uint160{}, err
	}
	if chain.IsZero(recipient) {
		return util.Uint160{}, errors.InvalidArgument("recipient", "zero address")
	}
	if recipient.Equals(tx.Self()) {
		return util.Uint160{}, errors.InvalidArgument("recipient", "solver itself")
	}
	return recipient, nil
}

func tokenBalance(tx *chain.Tx, token util.Uint160) (*big.Int, error) {
	result, err := tx.Call(chain.Call{
		To:     token,
		Method: chain.TokenMethodBalanceOf,
		Args:   []any{tx.Self()},
	})
	if err != nil {
		return nil, err
	}
	return chain.DecodeInteger(result), nil
}

// safeTransfer accepts an empty result as success, since some tokens return
// nothing from transfer.
func safeTransfer(tx *chain.Tx, token, to util.Uint160, amount *big.Int) error {
	result, err := tx.Call(chain.Call{
		To:     token,
		Method: chain.TokenMethodTransfer,
		Args:   []any{to, amount},
	})
	if err != nil {
		return err
	}
	if ok, returned := chain.DecodeBool(result); returned && !ok {
		return errTransferReturnedFalse
	}
	return nil
}
