package storage

import (
	"context"
	"time"

	"NotifyGate/tools/errs"

	"github.com/redis/go-redis/v9"
)

// PresenceMirror keeps a cluster-wide copy of per-principal connection
// counts in a Redis hash so public snapshots can cover every gateway node.
// The local registry stays authoritative; mirror failures only degrade the
// snapshot, never the connection path.

type MirrorConfig struct {
	Key string        // hash key, default "ng:presence"
	TTL time.Duration // safety net against entries leaked by crashed nodes
}

// Increments the count for a principal and refreshes the hash TTL.
// KEYS[1] = presence hash
// ARGV[1] = principal id
// ARGV[2] = ttlSeconds
// returns the new count
const luaMirrorConnect = `
local h   = KEYS[1]
local p   = ARGV[1]
local ttl = tonumber(ARGV[2])
local n = redis.call("HINCRBY", h, p, 1)
if ttl > 0 then
  redis.call("EXPIRE", h, ttl)
end
return n
`

// Decrements the count and deletes the field at zero. A decrement on a
// missing field is a no-op (idempotent disconnect across nodes).
// KEYS[1] = presence hash
// ARGV[1] = principal id
// returns the new count (0 when removed or absent)
const luaMirrorDisconnect = `
local h = KEYS[1]
local p = ARGV[1]
if redis.call("HEXISTS", h, p) == 0 then
  return 0
end
local n = redis.call("HINCRBY", h, p, -1)
if n <= 0 then
  redis.call("HDEL", h, p)
  return 0
end
return n
`

type PresenceMirror struct {
	rdb  *redis.Client
	conf MirrorConfig

	luaConnect    *redis.Script
	luaDisconnect *redis.Script
}

func NewPresenceMirror(rdb *redis.Client, conf MirrorConfig) *PresenceMirror {
	if conf.Key == "" {
		conf.Key = "ng:presence"
	}
	return &PresenceMirror{
		rdb:           rdb,
		conf:          conf,
		luaConnect:    redis.NewScript(luaMirrorConnect),
		luaDisconnect: redis.NewScript(luaMirrorDisconnect),
	}
}

// Connect mirrors a local 0→n transition; returns the cluster-wide count.
func (m *PresenceMirror) Connect(ctx context.Context, principalID string) (int64, error) {
	if m == nil || m.rdb == nil {
		return 0, nil
	}
	ttl := int64(m.conf.TTL / time.Second)
	n, err := m.luaConnect.Run(ctx, m.rdb, []string{m.conf.Key}, principalID, ttl).Int64()
	if err != nil {
		return 0, errs.WrapMsg(err, "presence mirror connect", "principal", principalID)
	}
	return n, nil
}

// Disconnect mirrors a teardown; missing entries are a no-op.
func (m *PresenceMirror) Disconnect(ctx context.Context, principalID string) (int64, error) {
	if m == nil || m.rdb == nil {
		return 0, nil
	}
	n, err := m.luaDisconnect.Run(ctx, m.rdb, []string{m.conf.Key}, principalID).Int64()
	if err != nil {
		return 0, errs.WrapMsg(err, "presence mirror disconnect", "principal", principalID)
	}
	return n, nil
}

// ListOnline returns every principal with a live connection on any node.
func (m *PresenceMirror) ListOnline(ctx context.Context) ([]string, error) {
	if m == nil || m.rdb == nil {
		return nil, nil
	}
	keys, err := m.rdb.HKeys(ctx, m.conf.Key).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "presence mirror list")
	}
	return keys, nil
}
