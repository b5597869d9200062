package kv

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/errs"
)

// Codec serializes the typed records kept in the store
type Codec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// JSONCodec is the codec used for every ephemeral record
type JSONCodec struct{}

func (JSONCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// Store is the ephemeral key/value store. Every write takes its TTL explicitly.
type Store struct {
	rdb   redis.UniversalClient
	codec Codec
}

// New wraps an existing redis client
func New(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb, codec: JSONCodec{}}
}

// Connect creates a redis client from config and checks it with PING
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errs.Wrapf(err, "redis ping %s", cfg.Addr)
	}
	return client, nil
}

// Client exposes the underlying redis client
func (s *Store) Client() redis.UniversalClient {
	return s.rdb
}

// Put stores v under key for ttl. A zero ttl is rejected: nothing here lives forever.
func (s *Store) Put(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		return errs.Newf("kv: refusing to write %s without ttl", key)
	}
	data, err := s.codec.Marshal(v)
	if err != nil {
		return errs.Wrapf(err, "kv: encode %s", key)
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return errs.Mark(errs.Wrapf(err, "kv: set %s", key), errs.ErrExternal)
	}
	return nil
}

// PutKeepTTL overwrites the value without touching the remaining TTL
func (s *Store) PutKeepTTL(ctx context.Context, key string, v interface{}) error {
	data, err := s.codec.Marshal(v)
	if err != nil {
		return errs.Wrapf(err, "kv: encode %s", key)
	}
	if err := s.rdb.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true, Mode: "XX"}).Err(); err != nil {
		if err == redis.Nil {
			return errs.NotFound("key", key)
		}
		return errs.Mark(errs.Wrapf(err, "kv: set %s", key), errs.ErrExternal)
	}
	return nil
}

// Get decodes the record stored under key. A missing key is errs.ErrNotFound.
func Get[T any](ctx context.Context, s *Store, key string) (*T, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, errs.NotFound("key", key)
	}
	if err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "kv: get %s", key), errs.ErrExternal)
	}

	var out T
	if err := s.codec.Unmarshal(data, &out); err != nil {
		return nil, errs.Wrapf(err, "kv: decode %s", key)
	}
	return &out, nil
}

// Delete removes keys, returning how many existed
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, errs.Mark(errs.Wrap(err, "kv: del"), errs.ErrExternal)
	}
	return n, nil
}

// TTL returns the remaining lifetime of key (negative when missing or persistent)
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, errs.Mark(errs.Wrapf(err, "kv: pttl %s", key), errs.ErrExternal)
	}
	return d, nil
}

// Expire resets the TTL of an existing key
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.PExpire(ctx, key, ttl).Result()
	if err != nil {
		return false, errs.Mark(errs.Wrapf(err, "kv: pexpire %s", key), errs.ErrExternal)
	}
	return ok, nil
}

// Incr increments a counter and (re)arms its TTL, giving a rolling window
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errs.Mark(errs.Wrapf(err, "kv: incr %s", key), errs.ErrExternal)
	}
	return incr.Val(), nil
}

// Counter reads an integer counter; missing counts as zero
func (s *Store) Counter(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errs.Mark(errs.Wrapf(err, "kv: get %s", key), errs.ErrExternal)
	}
	return n, nil
}

// HIncr increments one field of a counter hash. Counter hashes have no TTL.
func (s *Store) HIncr(ctx context.Context, key, field string, by int64) error {
	if err := s.rdb.HIncrBy(ctx, key, field, by).Err(); err != nil {
		return errs.Mark(errs.Wrapf(err, "kv: hincrby %s", key), errs.ErrExternal)
	}
	return nil
}

// HCounters reads a counter hash
func (s *Store) HCounters(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "kv: hgetall %s", key), errs.ErrExternal)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Scan lists keys matching a glob pattern
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "kv: scan %s", pattern), errs.ErrExternal)
	}
	return keys, nil
}

// SAdd adds a member to a set and re-arms the set TTL
func (s *Store) SAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key, member)
	pipe.PExpire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Mark(errs.Wrapf(err, "kv: sadd %s", key), errs.ErrExternal)
	}
	return nil
}

// SRem removes a member from a set
func (s *Store) SRem(ctx context.Context, key, member string) error {
	if err := s.rdb.SRem(ctx, key, member).Err(); err != nil {
		return errs.Mark(errs.Wrapf(err, "kv: srem %s", key), errs.ErrExternal)
	}
	return nil
}

// SMembers lists set members
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "kv: smembers %s", key), errs.ErrExternal)
	}
	return members, nil
}

// NewToken returns a random owner token for locks and ids
func NewToken() string {
	return uuid.NewString()
}
