// Package registry implements C5, the registry state machine: the
// authoritative owner of the UVN model (§3) and the orchestrator that
// invokes C2 when entities are registered or rekeyed and runs C4/C1/C3/C6
// on redeploy (§4.5); other mutations only return the UVN to Draft.
//
// A Registry instance is stateless beyond its collaborators; all durable
// state lives in Store. Every mutating method acquires the single writer
// lock (§5) for the named UVN before touching it, so Registry itself is
// safe for concurrent use by multiple goroutines or processes sharing the
// same Store.
package registry

import "github.com/uno-network/uno/pkg/model"

// State names one of the three registry states (§4.5).
type State string

const (
	StateEmpty    State = "empty"
	StateDraft    State = "draft"
	StateDeployed State = "deployed"
)

// Aggregate is the in-memory shape of one UVN's full authoritative state:
// everything a transition needs to validate invariants and decide the next
// state, loaded from Store at the start of a transition and written back
// atomically at the end.
type Aggregate struct {
	Name            string
	Address         string
	OwnerID         uint32
	State           State
	Settings        model.Settings
	Cells           map[uint32]model.Cell
	Particles       map[uint32]model.Particle
	CurrentConfigID string
}

// UVN projects the aggregate into the plain model.UVN shape the strategy,
// address-plan, and tunnel layers consume.
func (a *Aggregate) UVN() *model.UVN {
	u := model.NewUVN(a.Name, a.Address, a.OwnerID, a.Settings)
	u.Cells = a.Cells
	u.Particles = a.Particles
	return u
}

// cellSlice returns the aggregate's cells as a slice, in map-iteration
// order; callers that need a stable order must sort it themselves (C1/C4
// already do, keyed off id, not slice order).
func (a *Aggregate) cellSlice() []model.Cell {
	out := make([]model.Cell, 0, len(a.Cells))
	for _, c := range a.Cells {
		out = append(out, c)
	}
	return out
}
