package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/registry"
)

// RegistryStore adapts Store to pkg/registry.Store: the authoritative UVN
// aggregate, its users, and its content-addressed snapshots, each held as a
// JSON blob in a single hash field so the relational table/key addressing
// stays uniform with every other table this package owns, while the
// aggregate's own internal shape (cells, particles, settings) stays free to
// evolve without a schema migration on the Redis side.
type RegistryStore struct {
	store *Store
}

// NewRegistryStore returns a registry.Store view over s.
func NewRegistryStore(s *Store) *RegistryStore {
	return &RegistryStore{store: s}
}

const blobField = "json"

func (rs *RegistryStore) GetUVN(ctx context.Context, name string) (*registry.Aggregate, bool, error) {
	fields, ok, err := rs.store.Get(ctx, TableUVNs, name)
	if err != nil || !ok {
		return nil, false, err
	}
	var agg registry.Aggregate
	if err := json.Unmarshal([]byte(fields[blobField]), &agg); err != nil {
		return nil, false, fmt.Errorf("decoding uvn %s: %w", name, err)
	}
	return &agg, true, nil
}

func (rs *RegistryStore) PutUVN(ctx context.Context, agg *registry.Aggregate) error {
	blob, err := json.Marshal(agg)
	if err != nil {
		return err
	}
	return rs.store.Put(ctx, TableUVNs, agg.Name, map[string]string{blobField: string(blob)})
}

func userRowKey(uvnName string, id uint32) string {
	return fmt.Sprintf("%s:%d", uvnName, id)
}

func (rs *RegistryStore) GetUser(ctx context.Context, uvnName string, id uint32) (model.User, bool, error) {
	fields, ok, err := rs.store.Get(ctx, TableUsers, userRowKey(uvnName, id))
	if err != nil || !ok {
		return model.User{}, false, err
	}
	var u model.User
	if err := json.Unmarshal([]byte(fields[blobField]), &u); err != nil {
		return model.User{}, false, err
	}
	return u, true, nil
}

func (rs *RegistryStore) PutUser(ctx context.Context, uvnName string, u model.User) error {
	blob, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return rs.store.Put(ctx, TableUsers, userRowKey(uvnName, u.ID), map[string]string{blobField: string(blob)})
}

// ListUsers scans every user row belonging to uvnName. Cursor-based SCAN
// over a "TABLE|uvnName:*" pattern would require a second wildcard segment
// ScanTable doesn't support, so this does a full-table scan and filters by
// prefix; registry user counts are small enough (owners/operators, not end
// users) that this is not a hot path.
func (rs *RegistryStore) ListUsers(ctx context.Context, uvnName string) ([]model.User, error) {
	keys, err := rs.store.ScanTable(ctx, TableUsers)
	if err != nil {
		return nil, err
	}
	prefix := uvnName + ":"
	var out []model.User
	for _, key := range keys {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		fields, ok, err := rs.store.Get(ctx, TableUsers, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var u model.User
		if err := json.Unmarshal([]byte(fields[blobField]), &u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (rs *RegistryStore) NextCellID(ctx context.Context, uvnName string) (uint32, error) {
	id, err := rs.store.NextID(ctx, "cell:"+uvnName)
	return uint32(id), err
}

func (rs *RegistryStore) NextParticleID(ctx context.Context, uvnName string) (uint32, error) {
	id, err := rs.store.NextID(ctx, "particle:"+uvnName)
	return uint32(id), err
}

func (rs *RegistryStore) NextUserID(ctx context.Context, uvnName string) (uint32, error) {
	id, err := rs.store.NextID(ctx, "user:"+uvnName)
	return uint32(id), err
}

func snapshotRowKey(uvnName, configID string) string {
	return uvnName + ":" + configID
}

func (rs *RegistryStore) PutSnapshot(ctx context.Context, uvnName string, cfg *model.RegistryConfig) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return rs.store.Put(ctx, TableSnapshots, snapshotRowKey(uvnName, cfg.ConfigID), map[string]string{blobField: string(blob)})
}

func (rs *RegistryStore) GetSnapshot(ctx context.Context, uvnName, configID string) (*model.RegistryConfig, bool, error) {
	fields, ok, err := rs.store.Get(ctx, TableSnapshots, snapshotRowKey(uvnName, configID))
	if err != nil || !ok {
		return nil, false, err
	}
	var cfg model.RegistryConfig
	if err := json.Unmarshal([]byte(fields[blobField]), &cfg); err != nil {
		return nil, false, err
	}
	return &cfg, true, nil
}

func agentConfigRowKey(uvnName string, cellID uint32, configID string) string {
	return fmt.Sprintf("%s:%d:%s", uvnName, cellID, configID)
}

func (rs *RegistryStore) PutAgentConfig(ctx context.Context, uvnName string, cellID uint32, configID string, bundleJSON []byte) error {
	return rs.store.Put(ctx, TableConfigs, agentConfigRowKey(uvnName, cellID, configID), map[string]string{blobField: string(bundleJSON)})
}

func (rs *RegistryStore) WithLock(ctx context.Context, uvnName, holder string, ttlSeconds int, fn func(ctx context.Context) error) (bool, error) {
	return rs.store.WithLock(ctx, uvnName, holder, ttlSeconds, fn)
}
