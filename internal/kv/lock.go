package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xelth-com/colocacion/internal/errs"
)

// Compare-and-delete / compare-and-expire so only the owner can touch a lock
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Lock is a token-owned mutual-exclusion key with a TTL
type Lock struct {
	store *Store
	key   string
	token string
}

// TryLock sets key only if absent. It returns (nil, false, nil) when someone else holds it.
func (s *Store) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	token := NewToken()
	ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, errs.Mark(errs.Wrapf(err, "kv: setnx %s", key), errs.ErrExternal)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{store: s, key: key, token: token}, true, nil
}

// ResumeLock rebuilds a handle for a lock whose token was persisted elsewhere
func (s *Store) ResumeLock(key, token string) *Lock {
	return &Lock{store: s, key: key, token: token}
}

// Key returns the lock key
func (l *Lock) Key() string { return l.key }

// Token returns the owner token
func (l *Lock) Token() string { return l.token }

// Release deletes the lock if this handle still owns it
func (l *Lock) Release(ctx context.Context) (bool, error) {
	n, err := releaseScript.Run(ctx, l.store.rdb, []string{l.key}, l.token).Int64()
	if err != nil {
		return false, errs.Mark(errs.Wrapf(err, "kv: release %s", l.key), errs.ErrExternal)
	}
	return n == 1, nil
}

// Refresh extends the lock TTL if this handle still owns it
func (l *Lock) Refresh(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, l.store.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errs.Mark(errs.Wrapf(err, "kv: refresh %s", l.key), errs.ErrExternal)
	}
	return n == 1, nil
}

// Holder returns the current token stored under a lock key, or "" if free
func (s *Store) Holder(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errs.Mark(errs.Wrapf(err, "kv: get %s", key), errs.ErrExternal)
	}
	return v, nil
}
