// Package kvtest spins up an in-process redis for tests.
package kvtest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/xelth-com/colocacion/internal/kv"
)

// New returns a store backed by miniredis. The server is closed on cleanup.
func New(t testing.TB) (*kv.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return kv.New(client), mr
}
