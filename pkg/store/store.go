// Package store implements the relational persistence (§6) and the
// single-writer distributed lock (§5) the registry is built on, using Redis
// hashes keyed "TABLE|key" exactly as the teacher's CONFIG_DB/STATE_DB
// clients do, plus INCR-based per-entity id counters for the "dense,
// never-reused" id contract.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Table names for the nine relational tables §6 enumerates, plus the
// next_id counter table.
const (
	TableUsers     = "USERS"
	TableUVNs      = "UVNS"
	TableSnapshots = "SNAPSHOTS"
	TableCells     = "CELLS"
	TableParticles = "PARTICLES"
	TableAsymKeys  = "ASYM_KEYS"
	TableSymKeys   = "SYM_KEYS"
	TableConfigs   = "AGENT_CONFIGS"
	TablePeers     = "PEERS"
	TableNextID    = "NEXT_ID"
)

// Store wraps a Redis client with the table-hash persistence convention and
// the registry's distributed writer lock.
type Store struct {
	client *redis.Client
}

// New returns a Store backed by addr/db.
func New(addr string, db int) *Store {
	return &Store{client: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// Connect verifies connectivity.
func (s *Store) Connect(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func rowKey(table, key string) string {
	return table + "|" + key
}

// Put writes fields as the hash at table|key, replacing any existing fields
// with the same name (fields not present in the map are left untouched —
// callers that need a full overwrite should Delete first).
func (s *Store) Put(ctx context.Context, table, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return s.client.HSet(ctx, rowKey(table, key), "_exists", "1").Err()
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return s.client.HSet(ctx, rowKey(table, key), args...).Err()
}

// Get reads the full hash at table|key. ok is false if the row is absent.
func (s *Store) Get(ctx context.Context, table, key string) (map[string]string, bool, error) {
	vals, err := s.client.HGetAll(ctx, rowKey(table, key)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(vals) == 0 {
		return nil, false, nil
	}
	return vals, true, nil
}

// Delete removes the row at table|key.
func (s *Store) Delete(ctx context.Context, table, key string) error {
	return s.client.Del(ctx, rowKey(table, key)).Err()
}

// ScanTable returns every key within table (the part after "TABLE|"),
// discovered via cursor-based SCAN rather than the blocking KEYS command.
func (s *Store) ScanTable(ctx context.Context, table string) ([]string, error) {
	pattern := table + "|*"
	var cursor uint64
	var out []string
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, err
		}
		prefix := table + "|"
		for _, k := range batch {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// NextID atomically increments and returns the next value of the named
// monotonic counter (RegistryStore keeps "cell:<uvn>", "particle:<uvn>" and
// "user:<uvn>" per UVN; KeyStore shares one "key_surrogate" counter across
// all key rows), giving the dense-never-reused id contract for free under
// the writer lock.
func (s *Store) NextID(ctx context.Context, counter string) (uint64, error) {
	n, err := s.client.HIncrBy(ctx, TableNextID, counter, 1).Result()
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// ============================================================================
// Single-writer distributed lock (§5)
// ============================================================================

var acquireLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

func lockKey(uvnName string) string {
	return fmt.Sprintf("UVN_LOCK|%s", uvnName)
}

// AcquireLock takes the registry's exclusive writer lock for uvnName on
// behalf of holder, bounded by ttlSeconds so a crashed writer cannot wedge
// the registry permanently. Returns (false, nil) on contention rather than
// an error; the caller maps that to uvnerr.Conflict.
func (s *Store) AcquireLock(ctx context.Context, uvnName, holder string, ttlSeconds int) (bool, error) {
	key := lockKey(uvnName)
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := acquireLockScript.Run(ctx, s.client, []string{key}, holder, now, strconv.Itoa(ttlSeconds)).Int()
	if err != nil {
		return false, fmt.Errorf("acquiring registry lock for %s: %w", uvnName, err)
	}
	return result == 1, nil
}

// ReleaseLock releases the writer lock for uvnName if holder still holds it.
// A missing lock (already expired) is treated as a successful release.
func (s *Store) ReleaseLock(ctx context.Context, uvnName, holder string) error {
	key := lockKey(uvnName)
	result, err := releaseLockScript.Run(ctx, s.client, []string{key}, holder).Int()
	if err != nil {
		return fmt.Errorf("releasing registry lock for %s: %w", uvnName, err)
	}
	if result == 0 {
		return fmt.Errorf("registry lock holder mismatch for %s", uvnName)
	}
	return nil
}

// LockHolder returns the current holder and acquisition time of uvnName's
// writer lock, or ("", zero, nil) if unlocked.
func (s *Store) LockHolder(ctx context.Context, uvnName string) (string, time.Time, error) {
	vals, err := s.client.HGetAll(ctx, lockKey(uvnName)).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("getting registry lock holder for %s: %w", uvnName, err)
	}
	if len(vals) == 0 {
		return "", time.Time{}, nil
	}
	acquired, _ := time.Parse(time.RFC3339, vals["acquired"])
	return vals["holder"], acquired, nil
}

// WithLock acquires the writer lock, runs fn, and releases it, returning
// uvnerr-compatible Conflict semantics to the caller on contention. This is
// the entry point pkg/registry uses for every mutating transition.
func (s *Store) WithLock(ctx context.Context, uvnName, holder string, ttlSeconds int, fn func(ctx context.Context) error) (bool, error) {
	got, err := s.AcquireLock(ctx, uvnName, holder, ttlSeconds)
	if err != nil {
		return false, err
	}
	if !got {
		return false, nil
	}
	defer s.ReleaseLock(ctx, uvnName, holder)
	return true, fn(ctx)
}
