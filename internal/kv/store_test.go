package kv_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/kv"
	"github.com/xelth-com/colocacion/internal/kv/kvtest"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	store, mr := kvtest.New(t)

	require.NoError(t, store.Put(ctx, "rec:1", record{Name: "a", Count: 2}, time.Minute))

	got, err := kv.Get[record](ctx, store, "rec:1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, 2, got.Count)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get[record](ctx, store, "rec:1")
	assert.True(t, errs.Is(err, errs.ErrNotFound), "expired key should be not found, got %v", err)
}

func TestPutRequiresTTL(t *testing.T) {
	store, _ := kvtest.New(t)
	err := store.Put(context.Background(), "rec:1", record{}, 0)
	assert.Error(t, err)
}

func TestPutKeepTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := kvtest.New(t)

	require.NoError(t, store.Put(ctx, "rec:1", record{Count: 1}, time.Minute))
	mr.FastForward(30 * time.Second)
	require.NoError(t, store.PutKeepTTL(ctx, "rec:1", record{Count: 2}))

	ttl, err := store.TTL(ctx, "rec:1")
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 30*time.Second)

	err = store.PutKeepTTL(ctx, "rec:missing", record{})
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}

func TestIncrRollingWindow(t *testing.T) {
	ctx := context.Background()
	store, mr := kvtest.New(t)

	for i := 0; i < 3; i++ {
		_, err := store.Incr(ctx, "freq:x", time.Hour)
		require.NoError(t, err)
		mr.FastForward(50 * time.Minute)
	}

	n, err := store.Counter(ctx, "freq:x")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "each increment re-arms the window")

	mr.FastForward(2 * time.Hour)
	n, err = store.Counter(ctx, "freq:x")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLockOwnership(t *testing.T) {
	ctx := context.Background()
	store, mr := kvtest.New(t)

	first, ok, err := store.TryLock(ctx, "lock:a", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = store.TryLock(ctx, "lock:a", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	stranger := store.ResumeLock("lock:a", "not-the-owner")
	released, err := stranger.Release(ctx)
	require.NoError(t, err)
	assert.False(t, released)

	refreshed, err := first.Refresh(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, time.Minute, mr.TTL("lock:a"))

	released, err = first.Release(ctx)
	require.NoError(t, err)
	assert.True(t, released)

	holder, err := store.Holder(ctx, "lock:a")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestSortedSet(t *testing.T) {
	ctx := context.Background()
	store, _ := kvtest.New(t)

	require.NoError(t, store.ZAdd(ctx, "q", "low", 1))
	require.NoError(t, store.ZAdd(ctx, "q", "high", 10))
	require.NoError(t, store.ZAdd(ctx, "q", "mid", 5))

	n, err := store.ZCard(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	upTo, err := store.ZRangeUpTo(ctx, "q", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"low", "mid"}, upTo)

	member, score, ok, err := store.ZPopMax(ctx, "q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "high", member)
	assert.Equal(t, float64(10), score)

	removed, err := store.ZRem(ctx, "q", "low")
	require.NoError(t, err)
	assert.True(t, removed)

	_, found, err := store.ZScore(ctx, "q", "low")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, ok, err = store.ZPopMax(ctx, "empty")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashCountersAndScan(t *testing.T) {
	ctx := context.Background()
	store, _ := kvtest.New(t)

	require.NoError(t, store.HIncr(ctx, "stats", "hits", 2))
	require.NoError(t, store.HIncr(ctx, "stats", "misses", 1))

	counters, err := store.HCounters(ctx, "stats")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"hits": 2, "misses": 1}, counters)

	require.NoError(t, store.Put(ctx, kv.CacheProductKey("1"), record{}, time.Minute))
	require.NoError(t, store.Put(ctx, kv.CacheProductKey("2"), record{}, time.Minute))
	keys, err := store.Scan(ctx, kv.CacheProductGlob)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
