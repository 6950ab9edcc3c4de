package registry

import (
	"context"

	"github.com/uno-network/uno/pkg/model"
)

// Store is the persistence seam the registry reads and writes the
// authoritative aggregate and its users through, plus the single-writer
// lock transitions run under. Implementations live in pkg/store.
type Store interface {
	GetUVN(ctx context.Context, name string) (*Aggregate, bool, error)
	PutUVN(ctx context.Context, agg *Aggregate) error

	GetUser(ctx context.Context, uvnName string, id uint32) (model.User, bool, error)
	PutUser(ctx context.Context, uvnName string, u model.User) error
	ListUsers(ctx context.Context, uvnName string) ([]model.User, error)

	NextCellID(ctx context.Context, uvnName string) (uint32, error)
	NextParticleID(ctx context.Context, uvnName string) (uint32, error)
	NextUserID(ctx context.Context, uvnName string) (uint32, error)

	PutSnapshot(ctx context.Context, uvnName string, cfg *model.RegistryConfig) error
	GetSnapshot(ctx context.Context, uvnName, configID string) (*model.RegistryConfig, bool, error)

	PutAgentConfig(ctx context.Context, uvnName string, cellID uint32, configID string, bundleJSON []byte) error

	WithLock(ctx context.Context, uvnName, holder string, ttlSeconds int, fn func(ctx context.Context) error) (bool, error)
}
