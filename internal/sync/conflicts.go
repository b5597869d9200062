package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/kv"
	"github.com/xelth-com/colocacion/internal/models"
)

func (e *Engine) storeConflicts(ctx context.Context, conflicts []Conflict) error {
	for _, c := range conflicts {
		if err := e.kv.Put(ctx, kv.SyncConflictKey(c.ProductID, string(c.Field)), c, e.cfg.ConflictTTL); err != nil {
			return errs.Wrapf(err, "persist %s conflict of product %d", c.Field, c.ProductID)
		}
	}
	e.log.Info().
		Int64("product_id", conflicts[0].ProductID).
		Int("count", len(conflicts)).
		Msg("⚠️ conflicts stored for manual resolution")
	return nil
}

// ListConflicts returns the pending manual conflicts of a product, or of
// every product when productID is 0
func (e *Engine) ListConflicts(ctx context.Context, productID int64) ([]Conflict, error) {
	pattern := kv.SyncConflictGlob
	if productID != 0 {
		pattern = "sync_conflicts:" + strconv.FormatInt(productID, 10) + ":*"
	}

	keys, err := e.kv.Scan(ctx, pattern)
	if err != nil {
		return nil, err
	}

	out := make([]Conflict, 0, len(keys))
	for _, key := range keys {
		c, err := kv.Get[Conflict](ctx, e.kv, key)
		if errs.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return strings.Compare(string(out[i].Field), string(out[j].Field)) < 0
	})
	return out, nil
}

// dropDecided filters out conflicts an operator already settled in favour of
// the local value while the ERP still reports the same value
func (e *Engine) dropDecided(ctx context.Context, conflicts []Conflict) ([]Conflict, error) {
	out := conflicts[:0]
	for _, c := range conflicts {
		d, err := kv.Get[Decision](ctx, e.kv, kv.SyncDecisionKey(c.ProductID, string(c.Field)))
		if err != nil && !errs.Is(err, errs.ErrNotFound) {
			return nil, errs.Wrapf(err, "load %s decision of product %d", c.Field, c.ProductID)
		}
		if err == nil && sameValue(d.ErpValue, c.ErpValue) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// sameValue compares values by their JSON form, since stored decisions come
// back from redis with JSON types
func sameValue(a, b interface{}) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

// ResolveConflict settles a stored conflict in favour of winner and removes
// it. An ERP win writes the value; a local win is remembered so the same ERP
// value is not flagged again.
func (e *Engine) ResolveConflict(ctx context.Context, productID int64, field Field, winner Source, actor string) (*models.Product, error) {
	if winner != SourceERP && winner != SourceLocal {
		return nil, errs.Validation("winner must be %q or %q", SourceERP, SourceLocal)
	}

	key := kv.SyncConflictKey(productID, string(field))
	decisionKey := kv.SyncDecisionKey(productID, string(field))
	c, err := kv.Get[Conflict](ctx, e.kv, key)
	if err != nil {
		return nil, err
	}

	lock, err := e.lockProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	defer e.unlock(lock)

	p, err := e.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if winner == SourceERP {
		if err := applyValue(p, field, c.ErpValue); err != nil {
			return nil, err
		}
		p.LastSync = &now
		if err := e.products.SaveSynced(ctx, p); err != nil {
			return nil, errs.Wrapf(err, "save product %d", productID)
		}
		e.cache.Invalidate(ctx, p.Barcode)
		if _, err := e.kv.Delete(ctx, key, decisionKey); err != nil {
			return nil, err
		}
	} else {
		d := Decision{ProductID: productID, Field: field, ErpValue: c.ErpValue, DecidedBy: actor, DecidedAt: now}
		if err := e.kv.Put(ctx, decisionKey, d, e.cfg.DecisionTTL); err != nil {
			return nil, errs.Wrapf(err, "persist %s decision of product %d", field, productID)
		}
		if _, err := e.kv.Delete(ctx, key); err != nil {
			return nil, err
		}
	}

	e.log.Info().
		Int64("product_id", productID).
		Str("field", string(field)).
		Str("winner", string(winner)).
		Str("actor", actor).
		Msg("conflict resolved manually")
	return p, nil
}
