package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/models"
)

// runStoreContract exercises behaviour both implementations must share
func runStoreContract(t *testing.T, s Stores) {
	ctx := context.Background()

	a := &models.Product{ErpID: 101, Barcode: "1234567890123", Reference: "REF-A", Location: models.StringPtr("A010"), Stock: 10, Status: models.ProductActive}
	b := &models.Product{ErpID: 102, Barcode: "1234567890124", Reference: "REF-B", Location: models.StringPtr("A010"), Stock: 2, Status: models.ProductActive}
	c := &models.Product{Barcode: "1234567890125", Reference: "REF-C", Status: models.ProductInactive}
	for _, p := range []*models.Product{a, b, c} {
		require.NoError(t, s.Products.Create(ctx, p))
		require.NotZero(t, p.ID)
	}

	t.Run("unique barcode", func(t *testing.T) {
		dup := &models.Product{Barcode: a.Barcode, Status: models.ProductActive}
		err := s.Products.Create(ctx, dup)
		assert.True(t, errs.Is(err, errs.ErrConflict), "got %v", err)
	})

	t.Run("find by barcode", func(t *testing.T) {
		got, err := s.Products.FindByBarcode(ctx, a.Barcode)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)

		_, err = s.Products.FindByBarcode(ctx, "0000000000000")
		assert.True(t, errs.Is(err, errs.ErrNotFound))
	})

	t.Run("find by location skips inactive", func(t *testing.T) {
		c.Location = models.StringPtr("A010")
		require.NoError(t, s.Products.Save(ctx, c))

		got, err := s.Products.FindByLocation(ctx, "A010")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, a.ID, got[0].ID)
		assert.Equal(t, b.ID, got[1].ID)
	})

	t.Run("stale ordering", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, s.Products.TouchSynced(ctx, a.ID, now.Add(-2*time.Hour)))

		stale, err := s.Products.FindStale(ctx, now.Add(-time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, stale, 2)
		assert.Equal(t, b.ID, stale[0].ID, "never-synced first")
		assert.Equal(t, a.ID, stale[1].ID)

		require.NoError(t, s.Products.TouchSynced(ctx, b.ID, now))
		stale, err = s.Products.FindStale(ctx, now.Add(-time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)

		err = s.Products.TouchSynced(ctx, 999999, now)
		assert.True(t, errs.Is(err, errs.ErrNotFound))
	})

	t.Run("history newest first", func(t *testing.T) {
		for _, loc := range []string{"B215", "C300"} {
			rec := &models.LocationChangeRecord{ProductID: a.ID, OldLocation: a.Location, NewLocation: models.StringPtr(loc), ActorID: "u1", Reason: "update"}
			require.NoError(t, s.History.Append(ctx, rec))
			a.Location = models.StringPtr(loc)
			time.Sleep(2 * time.Millisecond)
		}
		got, err := s.History.ListByProduct(ctx, a.ID, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "C300", *got[0].NewLocation)
	})

	t.Run("label per creator", func(t *testing.T) {
		l1 := models.NewLabelFor(*a, "u1", "dev1")
		l2 := models.NewLabelFor(*a, "u2", "dev2")
		require.NoError(t, s.Labels.Upsert(ctx, &l1))
		require.NoError(t, s.Labels.Upsert(ctx, &l2))
		assert.NotEqual(t, l1.ID, l2.ID)

		printedAt := time.Now().UTC().Add(-40 * 24 * time.Hour)
		require.NoError(t, s.Labels.MarkPrinted(ctx, []int64{l1.ID}, printedAt))

		pending, err := s.Labels.Pending(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, pending)

		// Refreshing the same (product, creator) reuses the row and resets printed
		again := models.NewLabelFor(*a, "u1", "dev1")
		again.Location = "D451"
		require.NoError(t, s.Labels.Upsert(ctx, &again))
		assert.Equal(t, l1.ID, again.ID)

		pending, err = s.Labels.Pending(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "D451", pending[0].Location)
		assert.False(t, pending[0].IsPrinted)
	})

	t.Run("purge printed", func(t *testing.T) {
		l := models.NewLabelFor(*b, "u3", "dev3")
		require.NoError(t, s.Labels.Upsert(ctx, &l))
		require.NoError(t, s.Labels.MarkPrinted(ctx, []int64{l.ID}, time.Now().UTC().Add(-31*24*time.Hour)))

		n, err := s.Labels.PurgePrinted(ctx, time.Now().UTC().Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		left, err := s.Labels.FindByIDs(ctx, []int64{l.ID})
		require.NoError(t, err)
		assert.Empty(t, left)
	})
	t.Run("scoped writes keep the other side's columns", func(t *testing.T) {
		operator, err := s.Products.FindByID(ctx, b.ID)
		require.NoError(t, err)
		syncer, err := s.Products.FindByID(ctx, b.ID)
		require.NoError(t, err)

		operator.Location = models.StringPtr("C300")
		require.NoError(t, s.Products.SavePlacement(ctx, operator))

		// syncer still holds location A010 from its earlier read
		syncer.Description = "Arandela"
		syncer.Stock = 4
		require.NoError(t, s.Products.SaveSynced(ctx, syncer))

		got, err := s.Products.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "C300", got.LocationCode())
		assert.Equal(t, "Arandela", got.Description)
		assert.Equal(t, 4.0, got.Stock)

		require.NoError(t, s.Products.SetErpID(ctx, b.ID, 555))
		got, err = s.Products.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(555), got.ErpID)
		assert.Equal(t, "C300", got.LocationCode())

		err = s.Products.SavePlacement(ctx, &models.Product{ID: 999999})
		assert.True(t, errs.Is(err, errs.ErrNotFound))
	})
}
