// Package keyauthority implements C2, the key authority: issuance,
// rotation, and fingerprinting of the asymmetric and symmetric key material
// the control plane hands out to UVNs, cells, particles, and tunnel links.
//
// The authority itself holds no lock; it is always invoked from inside a
// registry transition already holding the single writer lock (§5). Ownership
// checks on private() are the caller's (the registry's) responsibility, not
// this package's — see pkg/auth.
package keyauthority

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/uvnerr"
)

// Store is the persistence seam the authority reads and writes rows
// through. Implementations live in pkg/store and are expected to be called
// while the registry's writer lock is held.
type Store interface {
	GetAsymmetric(kind, ownerID string) (model.AsymmetricKey, bool, error)
	PutAsymmetric(model.AsymmetricKey) error
	GetSymmetric(kind, ownerID string) (model.SymmetricKey, bool, error)
	PutSymmetric(model.SymmetricKey) error
	NextSurrogateID() (uint64, error)
}

// Authority is C2. It is stateless beyond its Store and sealing key.
type Authority struct {
	store Store
	aead  interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// New builds an Authority. sealKey seals private/symmetric material at
// rest; it must be exactly chacha20poly1305.KeySize (32) bytes and is
// typically derived from an operator-supplied master secret, never from key
// material the authority itself manages.
func New(store Store, sealKey [chacha20poly1305.KeySize]byte) (*Authority, error) {
	aead, err := chacha20poly1305.New(sealKey[:])
	if err != nil {
		return nil, fmt.Errorf("initializing seal cipher: %w", err)
	}
	return &Authority{store: store, aead: aead}, nil
}

func keyID(kind, ownerID string) string { return kind + ":" + ownerID }

func (a *Authority) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return a.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (a *Authority) unseal(sealed []byte) ([]byte, error) {
	n := a.aead.NonceSize()
	if len(sealed) < n {
		return nil, fmt.Errorf("sealed material truncated")
	}
	return a.aead.Open(nil, sealed[:n], sealed[n:], nil)
}

// IssueAsymmetric generates a fresh Curve25519 keypair for (kind, ownerID).
// Fails with KeyExists if a non-dropped row already exists.
func (a *Authority) IssueAsymmetric(kind, ownerID string) (string, []byte, error) {
	if _, ok, err := a.store.GetAsymmetric(kind, ownerID); err != nil {
		return "", nil, err
	} else if ok {
		return "", nil, &uvnerr.KeyExists{Kind: kind, OwnerID: ownerID}
	}
	return a.generateAndStoreAsymmetric(kind, ownerID)
}

// RotateAsymmetric drops the current row for (kind, ownerID) and issues a
// successor, retaining the dropped row for history. Fails with KeyMissing
// if there is no current row to rotate.
func (a *Authority) RotateAsymmetric(kind, ownerID string) (string, []byte, error) {
	current, ok, err := a.store.GetAsymmetric(kind, ownerID)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, &uvnerr.KeyMissing{Kind: kind, OwnerID: ownerID}
	}
	current.Dropped = true
	if err := a.store.PutAsymmetric(current); err != nil {
		return "", nil, err
	}
	return a.generateAndStoreAsymmetric(kind, ownerID)
}

func (a *Authority) generateAndStoreAsymmetric(kind, ownerID string) (string, []byte, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return "", nil, err
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return "", nil, fmt.Errorf("deriving public key: %w", err)
	}
	sealedPriv, err := a.seal(priv[:])
	if err != nil {
		return "", nil, err
	}
	surrogate, err := a.store.NextSurrogateID()
	if err != nil {
		return "", nil, err
	}
	id := keyID(kind, ownerID)
	row := model.AsymmetricKey{
		SurrogateID: surrogate,
		KeyID:       id,
		Kind:        kind,
		OwnerID:     ownerID,
		Public:      pub,
		PrivateEnc:  sealedPriv,
		Dropped:     false,
	}
	if err := a.store.PutAsymmetric(row); err != nil {
		return "", nil, err
	}
	return id, pub, nil
}

// PublicAsymmetric fetches the non-dropped public key for (kind, ownerID).
func (a *Authority) PublicAsymmetric(kind, ownerID string) ([]byte, error) {
	row, ok, err := a.store.GetAsymmetric(kind, ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &uvnerr.KeyMissing{Kind: kind, OwnerID: ownerID}
	}
	return row.Public, nil
}

// PrivateAsymmetric fetches and unseals the non-dropped private key for
// (kind, ownerID). Callers must have already enforced ownership.
func (a *Authority) PrivateAsymmetric(kind, ownerID string) ([]byte, error) {
	row, ok, err := a.store.GetAsymmetric(kind, ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &uvnerr.KeyMissing{Kind: kind, OwnerID: ownerID}
	}
	return a.unseal(row.PrivateEnc)
}

// FingerprintAsymmetric returns the stable SHA-256 hex digest over the
// non-dropped public key material for (kind, ownerID).
func (a *Authority) FingerprintAsymmetric(kind, ownerID string) (string, error) {
	pub, err := a.PublicAsymmetric(kind, ownerID)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:]), nil
}

// IssueSymmetric generates a fresh 32-byte preshared key for (kind, ownerID).
func (a *Authority) IssueSymmetric(kind, ownerID string) (string, error) {
	if _, ok, err := a.store.GetSymmetric(kind, ownerID); err != nil {
		return "", err
	} else if ok {
		return "", &uvnerr.KeyExists{Kind: kind, OwnerID: ownerID}
	}
	return a.generateAndStoreSymmetric(kind, ownerID)
}

// RotateSymmetric drops the current preshared key and issues a successor.
func (a *Authority) RotateSymmetric(kind, ownerID string) (string, error) {
	current, ok, err := a.store.GetSymmetric(kind, ownerID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &uvnerr.KeyMissing{Kind: kind, OwnerID: ownerID}
	}
	current.Dropped = true
	if err := a.store.PutSymmetric(current); err != nil {
		return "", err
	}
	return a.generateAndStoreSymmetric(kind, ownerID)
}

func (a *Authority) generateAndStoreSymmetric(kind, ownerID string) (string, error) {
	material := make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		return "", err
	}
	sealed, err := a.seal(material)
	if err != nil {
		return "", err
	}
	surrogate, err := a.store.NextSurrogateID()
	if err != nil {
		return "", err
	}
	id := keyID(kind, ownerID)
	row := model.SymmetricKey{
		SurrogateID: surrogate,
		KeyID:       id,
		Kind:        kind,
		OwnerID:     ownerID,
		MaterialEnc: sealed,
		Dropped:     false,
	}
	if err := a.store.PutSymmetric(row); err != nil {
		return "", err
	}
	return id, nil
}

// Material unseals and returns the non-dropped symmetric key for
// (kind, ownerID) — used when assembling tunnel link endpoints.
func (a *Authority) Material(kind, ownerID string) ([]byte, error) {
	row, ok, err := a.store.GetSymmetric(kind, ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &uvnerr.KeyMissing{Kind: kind, OwnerID: ownerID}
	}
	return a.unseal(row.MaterialEnc)
}
