// Package uvnerr defines the typed error taxonomy the registry and its
// collaborators return. Every exported error type wraps one of a small set
// of sentinels so callers can match either the specific kind (errors.As) or
// the coarse category (errors.Is).
package uvnerr

import "errors"

// Sentinel errors. Typed errors below wrap exactly one of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrExists           = errors.New("already exists")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrCapacity         = errors.New("capacity exceeded")
	ErrConflict         = errors.New("conflicting writer")
)

// NameTaken indicates a registration used a name already held by another
// entity of the same kind within the UVN.
type NameTaken struct {
	Kind string // "uvn", "cell", "particle", "user"
	Name string
}

func (e *NameTaken) Error() string {
	return e.Kind + " name already taken: " + e.Name
}

func (e *NameTaken) Unwrap() error { return ErrExists }

// NotFound indicates the referenced entity does not exist.
type NotFound struct {
	Kind string
	Ref  string
}

func (e *NotFound) Error() string {
	return e.Kind + " not found: " + e.Ref
}

func (e *NotFound) Unwrap() error { return ErrNotFound }

// PermissionDenied indicates the caller is not the owner (or superuser) of
// the entity being mutated or whose private material was requested.
type PermissionDenied struct {
	Caller string
	Op     string
}

func (e *PermissionDenied) Error() string {
	return "permission denied for " + e.Caller + " on " + e.Op
}

func (e *PermissionDenied) Unwrap() error { return ErrPermissionDenied }

// LANOverlap indicates two cells' allowed-LAN sets are not pairwise disjoint.
type LANOverlap struct {
	A, B string // CIDRs, or "cell:CIDR" pairs
}

func (e *LANOverlap) Error() string {
	return "allowed LAN overlap: " + e.A + " and " + e.B
}

func (e *LANOverlap) Unwrap() error { return ErrInvalidConfig }

// ReservedNetworkOverlap indicates a cell's allowed LAN overlaps one of the
// UVN's reserved base networks (root VPN, particles VPN, backbone, routing).
type ReservedNetworkOverlap struct {
	Cell string
	Base string
}

func (e *ReservedNetworkOverlap) Error() string {
	return "cell " + e.Cell + " allowed LAN overlaps reserved base network " + e.Base
}

func (e *ReservedNetworkOverlap) Unwrap() error { return ErrInvalidConfig }

// CapacityExceeded indicates a base network ran out of address space for the
// current cell/link count.
type CapacityExceeded struct {
	Base string
}

func (e *CapacityExceeded) Error() string {
	return "capacity exceeded in base network: " + e.Base
}

func (e *CapacityExceeded) Unwrap() error { return ErrCapacity }

// NotDeployable indicates the UVN has no non-excluded public cell.
type NotDeployable struct {
	Reason string
}

func (e *NotDeployable) Error() string {
	if e.Reason == "" {
		return "uvn is not deployable: no public cell"
	}
	return "uvn is not deployable: " + e.Reason
}

func (e *NotDeployable) Unwrap() error { return ErrInvalidConfig }

// StrategyUnsatisfiable indicates the selected deployment strategy could not
// meet its structural contract within its attempt budget.
type StrategyUnsatisfiable struct {
	Strategy string
	Reason   string
}

func (e *StrategyUnsatisfiable) Error() string {
	return "strategy " + e.Strategy + " unsatisfiable: " + e.Reason
}

func (e *StrategyUnsatisfiable) Unwrap() error { return ErrInvalidConfig }

// InvalidStaticGraph indicates the static deployment-strategy's supplied
// adjacency list failed validation.
type InvalidStaticGraph struct {
	Reason string
}

func (e *InvalidStaticGraph) Error() string {
	return "invalid static graph: " + e.Reason
}

func (e *InvalidStaticGraph) Unwrap() error { return ErrInvalidConfig }

// KeyExists indicates issue() was called for a (kind, owner) pair that
// already has a non-dropped key.
type KeyExists struct {
	Kind    string
	OwnerID string
}

func (e *KeyExists) Error() string {
	return "key already exists for " + e.Kind + "/" + e.OwnerID
}

func (e *KeyExists) Unwrap() error { return ErrExists }

// KeyMissing indicates a fetch was attempted for a (kind, owner) pair with
// no non-dropped row.
type KeyMissing struct {
	Kind    string
	OwnerID string
}

func (e *KeyMissing) Error() string {
	return "no key for " + e.Kind + "/" + e.OwnerID
}

func (e *KeyMissing) Unwrap() error { return ErrNotFound }

// Conflict indicates a concurrent writer held the registry lock and the
// caller should retry at its own discretion.
type Conflict struct {
	Holder string
}

func (e *Conflict) Error() string {
	if e.Holder == "" {
		return "conflict: registry locked by another writer"
	}
	return "conflict: registry locked by " + e.Holder
}

func (e *Conflict) Unwrap() error { return ErrConflict }
