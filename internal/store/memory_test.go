package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/colocacion/internal/models"
)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore().Stores())
}

func TestMemoryStoreSaveHook(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := &models.Product{Barcode: "1234567890123", Stock: 10, Status: models.ProductActive}
	require.NoError(t, s.Create(ctx, p))

	boom := errors.New("disk full")
	s.SaveHook = func(*models.Product) error { return boom }

	p.Stock = 0
	assert.ErrorIs(t, s.Save(ctx, p), boom)

	got, err := s.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(10), got.Stock)
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := &models.Product{Barcode: "1234567890123", Location: models.StringPtr("A010"), Status: models.ProductActive}
	require.NoError(t, s.Create(ctx, p))

	got, err := s.FindByID(ctx, p.ID)
	require.NoError(t, err)
	*got.Location = "Z999"

	again, err := s.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "A010", again.LocationCode())
}
