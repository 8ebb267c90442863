package solver

import (
	stderrors "errors"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/errors"
)

var errTargetUnset = stderrors.New("delegate target unset")

// forward hands payload and the frame's value to the delegate target as a
// bare call. The target's return data is passed back unchanged; any failure
// surfaces as DelegationFailed carrying the target's reason.
func (s *Solver) forward(tx *chain.Tx, payload []byte) ([]byte, error) {
	target := readAddress(tx, keyDelegateTarget)
	if chain.IsZero(target) {
		return nil, errors.DelegationFailed(errTargetUnset)
	}
	result, err := tx.Call(chain.Call{
		To:      target,
		Payload: payload,
		Value:   tx.Value(),
	})
	if err != nil {
		return nil, errors.DelegationFailed(err)
	}
	return result, nil
}
