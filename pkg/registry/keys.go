package registry

import (
	"errors"

	"github.com/uno-network/uno/pkg/uvnerr"
)

// Authority is the subset of keyauthority.Authority the registry depends
// on. Identity keys (uvn/cell/particle) are issued once at registration and
// rotated explicitly via rekey(); a cell's root-VPN link keys are issued
// when the cell is defined, and the other per-link keys are issued by C3
// for every link; all are idempotent across redeploys via
// idempotentAuthority below.
type Authority interface {
	IssueAsymmetric(kind, ownerID string) (string, []byte, error)
	RotateAsymmetric(kind, ownerID string) (string, []byte, error)
	PublicAsymmetric(kind, ownerID string) ([]byte, error)
	PrivateAsymmetric(kind, ownerID string) ([]byte, error)
	FingerprintAsymmetric(kind, ownerID string) (string, error)
	IssueSymmetric(kind, ownerID string) (string, error)
	RotateSymmetric(kind, ownerID string) (string, error)
	Material(kind, ownerID string) ([]byte, error)
}

// idempotentAuthority adapts Authority to tunnel.KeyAuthority with
// issue-or-fetch semantics: C1's allocator recomputes the full link set on
// every redeploy, including links whose endpoints haven't changed, but C2's
// issue() contract fails with KeyExists on a second call for the same
// (kind, owner). Since link keys are never rotated in place, reusing the existing row when one is already
// present is the correct "no-change" behavior and keeps repeated redeploys
// of an unchanged link producing the same bundle (§4.6 idempotence hook).
type idempotentAuthority struct {
	authority Authority
}

func (a *idempotentAuthority) IssueAsymmetric(kind, ownerID string) (string, []byte, error) {
	if pub, err := a.authority.PublicAsymmetric(kind, ownerID); err == nil {
		return kind + ":" + ownerID, pub, nil
	} else if !isKeyMissing(err) {
		return "", nil, err
	}
	return a.authority.IssueAsymmetric(kind, ownerID)
}

func (a *idempotentAuthority) PrivateAsymmetric(kind, ownerID string) ([]byte, error) {
	return a.authority.PrivateAsymmetric(kind, ownerID)
}

func (a *idempotentAuthority) IssueSymmetric(kind, ownerID string) (string, error) {
	if _, err := a.authority.Material(kind, ownerID); err == nil {
		return kind + ":" + ownerID, nil
	} else if !isKeyMissing(err) {
		return "", err
	}
	return a.authority.IssueSymmetric(kind, ownerID)
}

func (a *idempotentAuthority) Material(kind, ownerID string) ([]byte, error) {
	return a.authority.Material(kind, ownerID)
}

func isKeyMissing(err error) bool {
	var missing *uvnerr.KeyMissing
	return errors.As(err, &missing)
}
