package solver

import (
	"sync"

	"github.com/google/uuid"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/errors"
)

// Capability is the proof, minted by trigger, that the internal execute
// path was entered through the solver itself. Only the Gate that minted it
// accepts it, and only while the minting call is in flight.
type Capability struct {
	id string
}

// ID returns the capability identifier, for logging.
func (c *Capability) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

// Gate authorizes the internal execute path.
type Gate struct {
	mu     sync.Mutex
	active *Capability
}

// Mint issues a capability for the current guarded call. The returned
// revoke function invalidates it.
func (g *Gate) Mint() (*Capability, func()) {
	c := &Capability{id: uuid.NewString()}
	g.mu.Lock()
	g.active = c
	g.mu.Unlock()
	return c, func() {
		g.mu.Lock()
		if g.active == c {
			g.active = nil
		}
		g.mu.Unlock()
	}
}

// Check verifies that tx is a self-call of the solver carrying the live
// capability.
func (g *Gate) Check(tx *chain.Tx, c *Capability) error {
	if !tx.Caller().Equals(tx.Self()) {
		return errors.Unauthorized("not self-invoked")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if c == nil || g.active != c {
		return errors.Unauthorized("not self-invoked")
	}
	return nil
}
