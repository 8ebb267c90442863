package solver

import (
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/errors"
)

func (s *Solver) onlyOwner(tx *chain.Tx) error {
	owner := readAddress(tx, keyOwner)
	if chain.IsZero(owner) || !tx.Caller().Equals(owner) {
		return errors.Unauthorized("caller is not the owner")
	}
	return nil
}

func (s *Solver) setDelegateTarget(tx *chain.Tx, call chain.Call) error {
	if err := s.onlyOwner(tx); err != nil {
		return err
	}
	target, err := chain.ArgAddress(call.Args, 0, "target")
	if err != nil {
		return err
	}
	previous := readAddress(tx, keyDelegateTarget)
	writeAddress(tx, keyDelegateTarget, target)
	tx.Notify(EventDelegateTargetSet, map[string]string{
		"previous_target": chain.FormatAddress(previous),
		"new_target":      chain.FormatAddress(target),
	})
	return nil
}

// transferOwnership hands the owner role to a non-zero address. Giving the
// role up is the separate renounceOwnership operation.
func (s *Solver) transferOwnership(tx *chain.Tx, call chain.Call) error {
	if err := s.onlyOwner(tx); err != nil {
		return err
	}
	newOwner, err := chain.ArgAddress(call.Args, 0, "new_owner")
	if err != nil {
		return err
	}
	if chain.IsZero(newOwner) {
		return errors.InvalidArgument("new_owner", "zero address, use renounceOwnership")
	}
	s.setOwner(tx, newOwner)
	return nil
}

func (s *Solver) renounceOwnership(tx *chain.Tx) error {
	if err := s.onlyOwner(tx); err != nil {
		return err
	}
	s.setOwner(tx, util.Uint160{})
	return nil
}

func (s *Solver) setOwner(tx *chain.Tx, owner util.Uint160) {
	previous := readAddress(tx, keyOwner)
	writeAddress(tx, keyOwner, owner)
	next := ""
	if !chain.IsZero(owner) {
		next = chain.FormatAddress(owner)
	}
	tx.Notify(EventOwnershipTransferred, map[string]string{
		"previous_owner": chain.FormatAddress(previous),
		"new_owner":      next,
	})
}
