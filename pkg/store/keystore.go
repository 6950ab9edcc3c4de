package store

import (
	"context"
	"encoding/hex"
	"strconv"

	"github.com/uno-network/uno/pkg/model"
)

// KeyStore adapts Store to pkg/keyauthority.Store. The key authority's
// interface predates context plumbing in this codebase (it is always
// called from inside an already-locked registry transition, never
// standalone), so KeyStore carries the context it was built with rather
// than threading one through every call.
type KeyStore struct {
	store *Store
	ctx   context.Context
}

// NewKeyStore returns a keyauthority.Store view over s for the lifetime of
// ctx (normally the context of the registry transition currently holding
// the writer lock).
func NewKeyStore(s *Store, ctx context.Context) *KeyStore {
	return &KeyStore{store: s, ctx: ctx}
}

func asymRowKey(kind, ownerID string) string { return kind + ":" + ownerID }

// GetAsymmetric returns the current (non-dropped) asymmetric key row for
// (kind, ownerID). Dropped rows are moved out of the current-key slot by
// PutAsymmetric, so their presence never surfaces here.
func (k *KeyStore) GetAsymmetric(kind, ownerID string) (model.AsymmetricKey, bool, error) {
	fields, ok, err := k.store.Get(k.ctx, TableAsymKeys, asymRowKey(kind, ownerID))
	if err != nil || !ok {
		return model.AsymmetricKey{}, false, err
	}
	return decodeAsymmetric(fields)
}

// PutAsymmetric writes row. A non-dropped row becomes the current row at
// kind:ownerID; a dropped row is archived under a surrogate-qualified key
// and removed from the current slot so a later GetAsymmetric sees nothing
// current until a fresh key is issued.
func (k *KeyStore) PutAsymmetric(row model.AsymmetricKey) error {
	current := asymRowKey(row.Kind, row.OwnerID)
	if row.Dropped {
		archiveKey := current + ":" + strconv.FormatUint(row.SurrogateID, 10)
		if err := k.store.Put(k.ctx, TableAsymKeys, archiveKey, encodeAsymmetric(row)); err != nil {
			return err
		}
		return k.store.Delete(k.ctx, TableAsymKeys, current)
	}
	return k.store.Put(k.ctx, TableAsymKeys, current, encodeAsymmetric(row))
}

func encodeAsymmetric(row model.AsymmetricKey) map[string]string {
	return map[string]string{
		"surrogate_id": strconv.FormatUint(row.SurrogateID, 10),
		"key_id":       row.KeyID,
		"kind":         row.Kind,
		"owner_id":     row.OwnerID,
		"public":       hex.EncodeToString(row.Public),
		"private_enc":  hex.EncodeToString(row.PrivateEnc),
		"dropped":      strconv.FormatBool(row.Dropped),
	}
}

func decodeAsymmetric(fields map[string]string) (model.AsymmetricKey, bool, error) {
	surrogate, err := strconv.ParseUint(fields["surrogate_id"], 10, 64)
	if err != nil {
		return model.AsymmetricKey{}, false, err
	}
	public, err := hex.DecodeString(fields["public"])
	if err != nil {
		return model.AsymmetricKey{}, false, err
	}
	privateEnc, err := hex.DecodeString(fields["private_enc"])
	if err != nil {
		return model.AsymmetricKey{}, false, err
	}
	dropped, _ := strconv.ParseBool(fields["dropped"])
	return model.AsymmetricKey{
		SurrogateID: surrogate,
		KeyID:       fields["key_id"],
		Kind:        fields["kind"],
		OwnerID:     fields["owner_id"],
		Public:      public,
		PrivateEnc:  privateEnc,
		Dropped:     dropped,
	}, true, nil
}

func symRowKey(kind, ownerID string) string { return kind + ":" + ownerID }

// GetSymmetric returns the current (non-dropped) symmetric key row for
// (kind, ownerID), mirroring GetAsymmetric's archiving convention.
func (k *KeyStore) GetSymmetric(kind, ownerID string) (model.SymmetricKey, bool, error) {
	fields, ok, err := k.store.Get(k.ctx, TableSymKeys, symRowKey(kind, ownerID))
	if err != nil || !ok {
		return model.SymmetricKey{}, false, err
	}
	return decodeSymmetric(fields)
}

// PutSymmetric writes row, archiving it out of the current slot if dropped.
func (k *KeyStore) PutSymmetric(row model.SymmetricKey) error {
	current := symRowKey(row.Kind, row.OwnerID)
	if row.Dropped {
		archiveKey := current + ":" + strconv.FormatUint(row.SurrogateID, 10)
		if err := k.store.Put(k.ctx, TableSymKeys, archiveKey, encodeSymmetric(row)); err != nil {
			return err
		}
		return k.store.Delete(k.ctx, TableSymKeys, current)
	}
	return k.store.Put(k.ctx, TableSymKeys, current, encodeSymmetric(row))
}

func encodeSymmetric(row model.SymmetricKey) map[string]string {
	return map[string]string{
		"surrogate_id": strconv.FormatUint(row.SurrogateID, 10),
		"key_id":       row.KeyID,
		"kind":         row.Kind,
		"owner_id":     row.OwnerID,
		"material_enc": hex.EncodeToString(row.MaterialEnc),
		"dropped":      strconv.FormatBool(row.Dropped),
	}
}

func decodeSymmetric(fields map[string]string) (model.SymmetricKey, bool, error) {
	surrogate, err := strconv.ParseUint(fields["surrogate_id"], 10, 64)
	if err != nil {
		return model.SymmetricKey{}, false, err
	}
	material, err := hex.DecodeString(fields["material_enc"])
	if err != nil {
		return model.SymmetricKey{}, false, err
	}
	dropped, _ := strconv.ParseBool(fields["dropped"])
	return model.SymmetricKey{
		SurrogateID: surrogate,
		KeyID:       fields["key_id"],
		Kind:        fields["kind"],
		OwnerID:     fields["owner_id"],
		MaterialEnc: material,
		Dropped:     dropped,
	}, true, nil
}

// NextSurrogateID returns the next value of the shared key-surrogate
// counter, used for both asymmetric and symmetric rows.
func (k *KeyStore) NextSurrogateID() (uint64, error) {
	return k.store.NextID(k.ctx, "key_surrogate")
}
