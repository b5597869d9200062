package sync

import (
	"context"
	"encoding/json"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/xelth-com/colocacion/internal/clock"
	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/kv"
	"github.com/xelth-com/colocacion/internal/logger"
	"github.com/xelth-com/colocacion/internal/metrics"
	"github.com/xelth-com/colocacion/internal/models"
	"github.com/xelth-com/colocacion/internal/store"
)

// Engine reconciles local products with the ERP
type Engine struct {
	products store.ProductStore
	erp      ERPClient
	cache    CacheInvalidator
	kv       *kv.Store
	cfg      config.SyncConfig
	clock    clock.Clock
	metrics  *metrics.Metrics
	log      zerolog.Logger

	driverMu gosync.Mutex
	driver   *driver
}

// NewEngine creates a sync engine with its collaborators
func NewEngine(products store.ProductStore, erp ERPClient, cache CacheInvalidator, kvStore *kv.Store, cfg config.SyncConfig, clk clock.Clock, m *metrics.Metrics) *Engine {
	return &Engine{
		products: products,
		erp:      erp,
		cache:    cache,
		kv:       kvStore,
		cfg:      cfg,
		clock:    clk,
		metrics:  m,
		log:      logger.Component("sync"),
	}
}

func (e *Engine) strategyOrDefault(s Strategy) Strategy {
	if s != "" {
		return s
	}
	if e.cfg.DefaultStrategy != "" {
		return Strategy(e.cfg.DefaultStrategy)
	}
	return StrategyTimestamp
}

// fetchErp loads the ERP record, backfilling the ERP id by barcode when the
// product has never been linked. It reports whether the id was backfilled.
func (e *Engine) fetchErp(ctx context.Context, p *models.Product) (*models.ErpProduct, bool, error) {
	if p.ErpID != 0 {
		erp, err := e.erp.SearchProductByErpID(ctx, p.ErpID)
		return erp, false, err
	}

	erp, err := e.erp.SearchProductByBarcode(ctx, p.Barcode)
	if err != nil {
		return nil, false, errs.Wrapf(err, "link product %d by barcode %s", p.ID, p.Barcode)
	}
	p.ErpID = erp.ID
	e.log.Info().Int64("product_id", p.ID).Int64("erp_id", erp.ID).Msg("🔗 linked product to ERP by barcode")
	return erp, true, nil
}

// lockProduct takes the per-product lock shared with optimistic updates so
// a sync write never interleaves with an operator's placement change
func (e *Engine) lockProduct(ctx context.Context, productID int64) (*kv.Lock, error) {
	lock, ok, err := e.kv.TryLock(ctx, kv.ProductLockKey(productID), e.cfg.LockTTL)
	if err != nil {
		return nil, errs.Wrapf(err, "lock product %d", productID)
	}
	if !ok {
		return nil, errs.Mark(errs.Newf("product %d is being updated", productID), errs.ErrBusy)
	}
	return lock, nil
}

func (e *Engine) unlock(lock *kv.Lock) {
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := lock.Release(releaseCtx); err != nil {
		e.log.Warn().Err(err).Str("key", lock.Key()).Msg("failed to release product lock")
	}
}

// syncOne pulls one product and applies the strategy. It returns whether any
// field was written. p is only used to find the ERP record; the comparison
// runs against the row re-read under the product lock, and only ERP-owned
// columns are written back.
func (e *Engine) syncOne(ctx context.Context, p *models.Product, actor string, strategy Strategy, res *Result) (bool, error) {
	erp, linked, err := e.fetchErp(ctx, p)
	if err != nil {
		return false, errs.Wrapf(err, "product %d", p.ID)
	}
	if erp.QtyAvailable < 0 {
		e.log.Warn().
			Int64("product_id", p.ID).
			Float64("qty_available", erp.QtyAvailable).
			Msg("ERP reports negative stock, syncing as 0")
	}

	id := p.ID
	lock, err := e.lockProduct(ctx, id)
	if err != nil {
		return false, err
	}
	defer e.unlock(lock)

	p, err = e.products.FindByID(ctx, id)
	if err != nil {
		return false, errs.Wrapf(err, "reload product %d", id)
	}
	if linked {
		p.ErpID = erp.ID
	}

	now := e.clock.Now()
	conflicts, err := e.dropDecided(ctx, detectConflicts(p, erp, now))
	if err != nil {
		return false, err
	}
	for i := range conflicts {
		conflicts[i].DetectedBy = actor
		e.metrics.SyncConflict(string(conflicts[i].Field), string(strategy))
	}
	res.Conflicts = append(res.Conflicts, conflicts...)

	if strategy == StrategyManual && len(conflicts) > 0 {
		if err := e.storeConflicts(ctx, conflicts); err != nil {
			return false, err
		}
		if linked {
			if err := e.products.SetErpID(ctx, p.ID, p.ErpID); err != nil {
				return false, errs.Wrapf(err, "save erp link of product %d", p.ID)
			}
		}
		return false, errs.Mark(
			errs.Newf("product %d has %d conflicts awaiting manual resolution", p.ID, len(conflicts)),
			errs.ErrConflict,
		)
	}

	changed := linked
	for _, c := range conflicts {
		r := resolveConflict(c, strategy)
		res.Resolved = append(res.Resolved, r)
		if c.ErpTimestamp == nil && strategy == StrategyTimestamp {
			e.log.Warn().Int64("product_id", p.ID).Str("field", string(c.Field)).Msg(r.Reason)
		}
		if r.Winner != SourceERP {
			continue
		}
		if err := applyValue(p, c.Field, c.ErpValue); err != nil {
			return false, errs.Wrapf(err, "apply %s to product %d", c.Field, p.ID)
		}
		changed = true
	}

	if !changed {
		// Nothing to write; only record that the product was checked
		if err := e.products.TouchSynced(ctx, p.ID, now); err != nil {
			return false, errs.Wrapf(err, "touch product %d", p.ID)
		}
		return false, nil
	}

	if snapshot, err := json.Marshal(erp); err == nil {
		p.ErpSnapshot = datatypes.JSON(snapshot)
	}
	p.LastSync = &now
	if err := e.products.SaveSynced(ctx, p); err != nil {
		return false, errs.Wrapf(err, "save product %d", p.ID)
	}
	e.cache.Invalidate(ctx, p.Barcode)

	e.log.Info().
		Int64("product_id", p.ID).
		Int("conflicts", len(conflicts)).
		Str("strategy", string(strategy)).
		Msg("✅ product updated from ERP")
	return true, nil
}

// SyncProduct reconciles one product against the ERP
func (e *Engine) SyncProduct(ctx context.Context, productID int64, actor string, strategy Strategy) (Result, error) {
	start := e.clock.Now()
	strategy = e.strategyOrDefault(strategy)
	res := Result{Processed: 1}

	p, err := e.products.FindByID(ctx, productID)
	if err != nil {
		res.Processed = 0
		res.fail(err)
		res.DurationMs = e.clock.Now().Sub(start).Milliseconds()
		return res, err
	}

	changed, err := e.syncOne(ctx, p, actor, strategy, &res)
	res.DurationMs = e.clock.Now().Sub(start).Milliseconds()
	e.metrics.SyncRun("product", err == nil)
	if err != nil {
		res.fail(err)
		e.log.Warn().Err(err).Int64("product_id", productID).Msg("product sync failed")
		return res, err
	}

	if changed {
		res.Updated = 1
	}
	res.Success = true
	return res, nil
}

// FullSync sweeps stale active products, oldest first. Only one sweep runs
// cluster-wide; a concurrent call fails fast with ErrSyncInProgress.
func (e *Engine) FullSync(ctx context.Context, maxItems int, strategy Strategy) (Result, error) {
	start := e.clock.Now()
	strategy = e.strategyOrDefault(strategy)
	res := Result{}

	lock, ok, err := e.kv.TryLock(ctx, kv.SyncLockKey, e.cfg.LockTTL)
	if err != nil {
		res.fail(err)
		return res, err
	}
	if !ok {
		res.Errors = append(res.Errors, errs.ErrSyncInProgress.Error())
		e.metrics.SyncRun("full", false)
		return res, errs.ErrSyncInProgress
	}
	defer func() {
		// The sweep ctx may already be cancelled; release on a fresh one
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := lock.Release(releaseCtx); err != nil {
			e.log.Warn().Err(err).Msg("failed to release sync lock")
		}
	}()

	if maxItems <= 0 {
		maxItems = e.cfg.MaxItems
	}

	stale, err := e.products.FindStale(ctx, start.Add(-e.cfg.Freshness), maxItems)
	if err != nil {
		res.fail(err)
		e.metrics.SyncRun("full", false)
		return res, err
	}

	e.log.Info().Int("candidates", len(stale)).Str("strategy", string(strategy)).Msg("🔄 starting full sync")

	for i := range stale {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, ctx.Err().Error())
			break
		}

		held, err := lock.Refresh(ctx, e.cfg.LockTTL)
		if err != nil || !held {
			res.Errors = append(res.Errors, "sync lock lost, stopping sweep")
			e.log.Warn().Err(err).Msg("sync lock lost, stopping sweep")
			break
		}

		p := stale[i]
		res.Processed++
		changed, err := e.syncOne(ctx, &p, "system", strategy, &res)
		if err != nil {
			res.fail(err)
			e.log.Warn().Err(err).Int64("product_id", p.ID).Msg("product sync failed during sweep")
		} else if changed {
			res.Updated++
		}

		if e.cfg.ItemDelay > 0 && i < len(stale)-1 {
			select {
			case <-time.After(e.cfg.ItemDelay):
			case <-ctx.Done():
			}
		}
	}

	res.Success = true
	res.DurationMs = e.clock.Now().Sub(start).Milliseconds()
	e.metrics.SyncRun("full", res.Failed == 0)

	e.log.Info().
		Int("processed", res.Processed).
		Int("updated", res.Updated).
		Int("failed", res.Failed).
		Int64("duration_ms", res.DurationMs).
		Msg("✅ full sync completed")
	return res, nil
}

// PushToERP writes the local location and/or stock to the ERP. lastSync is
// stamped only when every requested write succeeded.
func (e *Engine) PushToERP(ctx context.Context, productID int64, change ChangeType, actor, device string) (Result, error) {
	start := e.clock.Now()
	res := Result{Processed: 1}
	finish := func(err error) (Result, error) {
		res.DurationMs = e.clock.Now().Sub(start).Milliseconds()
		e.metrics.SyncRun("push", err == nil)
		return res, err
	}

	p, err := e.products.FindByID(ctx, productID)
	if err != nil {
		res.Processed = 0
		res.fail(err)
		return finish(err)
	}

	if p.ErpID == 0 {
		erp, err := e.erp.SearchProductByBarcode(ctx, p.Barcode)
		if err != nil {
			err = errs.Wrapf(err, "product %d is not linked to the ERP", p.ID)
			res.fail(err)
			return finish(err)
		}
		p.ErpID = erp.ID
		if err := e.products.SetErpID(ctx, p.ID, p.ErpID); err != nil {
			res.fail(err)
			return finish(err)
		}
	}

	var failed []string
	if change == ChangeLocation || change == ChangeBoth {
		if err := e.erp.UpdateLocation(ctx, p.ErpID, p.LocationCode()); err != nil {
			failed = append(failed, "location")
			res.Errors = append(res.Errors, "location: "+err.Error())
		}
	}
	if change == ChangeStock || change == ChangeBoth {
		if err := e.erp.UpdateStock(ctx, p.ErpID, p.Stock); err != nil {
			failed = append(failed, "stock")
			res.Errors = append(res.Errors, "stock: "+err.Error())
		}
	}

	if len(failed) > 0 {
		res.Failed = 1
		e.log.Warn().
			Int64("product_id", p.ID).
			Strs("failed", failed).
			Str("actor", actor).
			Str("device", device).
			Msg("push to ERP partially failed")
		return finish(errs.Mark(errs.Newf("push to ERP failed for %v", failed), errs.ErrExternal))
	}

	if err := e.products.TouchSynced(ctx, p.ID, e.clock.Now()); err != nil {
		res.fail(err)
		return finish(err)
	}

	res.Success = true
	res.Updated = 1
	e.log.Info().
		Int64("product_id", p.ID).
		Str("change", string(change)).
		Str("actor", actor).
		Str("device", device).
		Msg("📤 pushed product to ERP")
	return finish(nil)
}

// CheckConnectivity probes the ERP
func (e *Engine) CheckConnectivity(ctx context.Context) Connectivity {
	info, err := e.erp.TestConnection(ctx)
	if err != nil {
		return Connectivity{Connected: false, Error: err.Error()}
	}
	return Connectivity{Connected: true, SystemInfo: info}
}
