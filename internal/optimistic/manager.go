// Package optimistic stages tentative product mutations, confirms or rolls
// them back once the durable write settles, and keeps a bounded per-device
// undo/redo history of confirmed changes.
package optimistic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xelth-com/colocacion/internal/clock"
	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/kv"
	"github.com/xelth-com/colocacion/internal/logger"
	"github.com/xelth-com/colocacion/internal/metrics"
	"github.com/xelth-com/colocacion/internal/models"
	"github.com/xelth-com/colocacion/internal/store"
)

// ReasonExpired is recorded on updates the reaper rolls back
const ReasonExpired = "expired"

type Manager struct {
	products store.ProductStore
	kv       *kv.Store
	cfg      config.OptimisticConfig
	clock    clock.Clock
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewManager(products store.ProductStore, kvStore *kv.Store, cfg config.OptimisticConfig, clk clock.Clock, m *metrics.Metrics) *Manager {
	return &Manager{
		products: products,
		kv:       kvStore,
		cfg:      cfg,
		clock:    clk,
		metrics:  m,
		log:      logger.Component("optimistic"),
	}
}

// recordTTL keeps a record readable for one extra stage period so the reaper
// and callers can still see how it ended
func (m *Manager) recordTTL() time.Duration {
	return 2 * m.cfg.StageTTL
}

func (m *Manager) lockProduct(ctx context.Context, productID int64) (*kv.Lock, error) {
	lock, ok, err := m.kv.TryLock(ctx, kv.ProductLockKey(productID), m.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Mark(errs.Newf("product %d is being modified by another device", productID), errs.ErrBusy)
	}
	return lock, nil
}

func (m *Manager) release(ctx context.Context, lock *kv.Lock) {
	if _, err := lock.Release(ctx); err != nil {
		m.log.Warn().Err(err).Str("lock", lock.Key()).Msg("failed to release product lock")
	}
}

// Stage snapshots the product and records the proposed placement. The durable
// store is not touched. The product stays locked until Confirm or Rollback.
// The snapshot is taken from the store under the lock; when p no longer
// matches it, Stage fails with ErrConflict and the caller must re-read.
func (m *Manager) Stage(ctx context.Context, p *models.Product, proposed models.Placement, actorID, deviceID string) (string, error) {
	lock, err := m.lockProduct(ctx, p.ID)
	if err != nil {
		return "", err
	}

	current, err := m.products.FindByID(ctx, p.ID)
	if err != nil {
		m.release(ctx, lock)
		return "", errs.Wrapf(err, "stage product %d", p.ID)
	}
	if !current.Placement().SameAs(p.Placement()) {
		m.release(ctx, lock)
		return "", errs.Mark(errs.Newf("product %d changed since it was read", p.ID), errs.ErrConflict)
	}

	now := m.clock.Now()
	rec := Record{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		Barcode:   p.Barcode,
		ActorID:   actorID,
		DeviceID:  deviceID,
		Original:  current.Placement(),
		Proposed:  proposed,
		LockToken: lock.Token(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.StageTTL),
	}

	if err := m.kv.Put(ctx, kv.OptimisticUpdateKey(rec.ID), rec, m.recordTTL()); err != nil {
		m.release(ctx, lock)
		return "", err
	}
	if err := m.kv.ZAdd(ctx, kv.PendingUpdatesKey, rec.ID, float64(rec.ExpiresAt.UnixMilli())); err != nil {
		_, _ = m.kv.Delete(ctx, kv.OptimisticUpdateKey(rec.ID))
		m.release(ctx, lock)
		return "", err
	}

	m.metrics.Optimistic("staged")
	m.log.Debug().Str("update_id", rec.ID).Int64("product_id", p.ID).Str("actor", actorID).Msg("update staged")
	return rec.ID, nil
}

// Get returns a record by update id
func (m *Manager) Get(ctx context.Context, updateID string) (*Record, error) {
	rec, err := kv.Get[Record](ctx, m.kv, kv.OptimisticUpdateKey(updateID))
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return nil, errs.NotFound("optimistic update", updateID)
		}
		return nil, err
	}
	return rec, nil
}

// resolve persists the final state of a record and frees its product
func (m *Manager) resolve(ctx context.Context, rec *Record) error {
	if err := m.kv.PutKeepTTL(ctx, kv.OptimisticUpdateKey(rec.ID), rec); err != nil {
		return err
	}
	if _, err := m.kv.ZRem(ctx, kv.PendingUpdatesKey, rec.ID); err != nil {
		m.log.Warn().Err(err).Str("update_id", rec.ID).Msg("failed to unindex update")
	}
	m.release(ctx, m.kv.ResumeLock(kv.ProductLockKey(rec.ProductID), rec.LockToken))
	return nil
}

// Confirm marks a staged update as durable and pushes it onto the actor's
// undo stack. It returns false when the update was already resolved.
func (m *Manager) Confirm(ctx context.Context, updateID string) (bool, error) {
	rec, err := m.Get(ctx, updateID)
	if err != nil {
		return false, err
	}
	if rec.State() != StateStaged {
		return false, nil
	}

	if err := m.confirm(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) confirm(ctx context.Context, rec *Record) error {
	rec.Confirmed = true
	if err := m.resolve(ctx, rec); err != nil {
		return err
	}

	op := Operation{
		ID:        uuid.NewString(),
		UpdateID:  rec.ID,
		ProductID: rec.ProductID,
		Barcode:   rec.Barcode,
		Before:    rec.Original,
		After:     rec.Proposed,
		Timestamp: m.clock.Now(),
		CanUndo:   true,
	}
	if err := m.push(ctx, rec.ActorID, rec.DeviceID, op); err != nil {
		// The change itself is durable; only its undo entry is lost
		m.log.Error().Err(err).Str("update_id", rec.ID).Msg("failed to record undo entry")
	}

	m.metrics.Optimistic("confirmed")
	m.log.Debug().Str("update_id", rec.ID).Int64("product_id", rec.ProductID).Msg("update confirmed")
	return nil
}

// Rollback restores the snapshot taken at Stage. Confirmed or already rolled
// back updates are left alone and report false. The product is only written
// when it still holds the proposed placement: a write that never landed needs
// no restore, and a placement changed by someone else is not overwritten.
func (m *Manager) Rollback(ctx context.Context, updateID, reason string) (bool, error) {
	rec, err := m.Get(ctx, updateID)
	if err != nil {
		return false, err
	}
	if rec.State() != StateStaged {
		return false, nil
	}

	p, err := m.products.FindByID(ctx, rec.ProductID)
	if err != nil {
		return false, errs.Wrapf(err, "rollback %s", updateID)
	}
	switch current := p.Placement(); {
	case current.SameAs(rec.Original):
	case current.SameAs(rec.Proposed):
		p.RestorePlacement(rec.Original)
		if err := m.products.SavePlacement(ctx, p); err != nil {
			return false, errs.Wrapf(err, "rollback %s", updateID)
		}
	default:
		m.log.Warn().
			Str("update_id", rec.ID).
			Int64("product_id", rec.ProductID).
			Msg("product changed after staging, leaving it as is")
	}

	rec.RolledBack = true
	rec.RollbackReason = reason
	if err := m.resolve(ctx, rec); err != nil {
		return false, err
	}

	outcome := "rolledback"
	if reason == ReasonExpired {
		outcome = "expired"
	}
	m.metrics.Optimistic(outcome)
	m.log.Info().
		Str("update_id", rec.ID).
		Int64("product_id", rec.ProductID).
		Str("reason", reason).
		Msg("↩️ update rolled back")
	return true, nil
}

// Restore writes a placement back without consulting the staged record. It
// is the fallback for undoing a durable write when the record store itself
// is unreachable; the record stays staged and the reaper settles it later.
func (m *Manager) Restore(ctx context.Context, productID int64, pl models.Placement) error {
	p, err := m.products.FindByID(ctx, productID)
	if err != nil {
		return errs.Wrapf(err, "restore product %d", productID)
	}
	p.RestorePlacement(pl)
	if err := m.products.SavePlacement(ctx, p); err != nil {
		return errs.Wrapf(err, "restore product %d", productID)
	}
	return nil
}

// CleanupExpired rolls back every staged update older than its TTL
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	due, err := m.kv.ZRangeUpTo(ctx, kv.PendingUpdatesKey, float64(m.clock.Now().UnixMilli()))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range due {
		ok, err := m.Rollback(ctx, id, ReasonExpired)
		switch {
		case errs.Is(err, errs.ErrNotFound):
			// Record already gone; drop the dangling index entry
			_, _ = m.kv.ZRem(ctx, kv.PendingUpdatesKey, id)
		case err != nil:
			m.log.Warn().Err(err).Str("update_id", id).Msg("failed to roll back expired update")
		case ok:
			count++
		default:
			_, _ = m.kv.ZRem(ctx, kv.PendingUpdatesKey, id)
		}
	}

	if count > 0 {
		m.log.Info().Int("count", count).Msg("🧹 expired optimistic updates rolled back")
	}
	return count, nil
}
