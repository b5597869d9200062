package kv

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/xelth-com/colocacion/internal/errs"
)

// ZAdd inserts or rescores a member. Index sets carry no TTL; their owners prune them.
func (s *Store) ZAdd(ctx context.Context, key, member string, score float64) error {
	if err := s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return errs.Mark(errs.Wrapf(err, "kv: zadd %s", key), errs.ErrExternal)
	}
	return nil
}

// ZPopMax atomically removes and returns the highest-scored member
func (s *Store) ZPopMax(ctx context.Context, key string) (string, float64, bool, error) {
	res, err := s.rdb.ZPopMax(ctx, key, 1).Result()
	if err != nil {
		return "", 0, false, errs.Mark(errs.Wrapf(err, "kv: zpopmax %s", key), errs.ErrExternal)
	}
	if len(res) == 0 {
		return "", 0, false, nil
	}
	member, _ := res[0].Member.(string)
	return member, res[0].Score, true, nil
}

// ZRem removes a member, reporting whether it was present
func (s *Store) ZRem(ctx context.Context, key, member string) (bool, error) {
	n, err := s.rdb.ZRem(ctx, key, member).Result()
	if err != nil {
		return false, errs.Mark(errs.Wrapf(err, "kv: zrem %s", key), errs.ErrExternal)
	}
	return n > 0, nil
}

// ZCard counts members
func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, errs.Mark(errs.Wrapf(err, "kv: zcard %s", key), errs.ErrExternal)
	}
	return n, nil
}

// ZScore returns the score of a member and whether it exists
func (s *Store) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.rdb.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errs.Mark(errs.Wrapf(err, "kv: zscore %s", key), errs.ErrExternal)
	}
	return score, true, nil
}

// ZRangeUpTo lists members with score <= max, lowest first
func (s *Store) ZRangeUpTo(ctx context.Context, key string, max float64) ([]string, error) {
	members, err := s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "kv: zrangebyscore %s", key), errs.ErrExternal)
	}
	return members, nil
}

// ZMembersDesc lists all members, highest score first
func (s *Store) ZMembersDesc(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "kv: zrevrange %s", key), errs.ErrExternal)
	}
	return members, nil
}
