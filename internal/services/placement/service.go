// Package placement is the caller-facing orchestration of product lookups and
// placement updates: validation, optimistic staging, durable write, cache
// invalidation, audit history, labels and print jobs.
package placement

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/xelth-com/colocacion/internal/cache"
	"github.com/xelth-com/colocacion/internal/clock"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/events"
	"github.com/xelth-com/colocacion/internal/logger"
	"github.com/xelth-com/colocacion/internal/models"
	"github.com/xelth-com/colocacion/internal/optimistic"
	"github.com/xelth-com/colocacion/internal/printqueue"
	"github.com/xelth-com/colocacion/internal/store"
)

// UpdateRequest changes location, stock or both. Nil fields are left alone.
type UpdateRequest struct {
	Barcode  string
	Location *string
	Stock    *float64
	Confirm  bool
	Print    bool
	Priority printqueue.Priority
	ActorID  string
	DeviceID string
	Reason   string
}

// UpdateResult reports what an update did. NeedsConfirmation is not an error:
// the caller resubmits with Confirm set.
type UpdateResult struct {
	Success           bool             `json:"success"`
	NeedsConfirmation bool             `json:"needsConfirmation,omitempty"`
	Occupants         []models.Product `json:"occupants,omitempty"`
	Product           *models.Product  `json:"product,omitempty"`
	UpdateID          string           `json:"updateId,omitempty"`
	LabelID           int64            `json:"labelId,omitempty"`
	JobID             string           `json:"jobId,omitempty"`
}

type Service struct {
	products   store.ProductStore
	history    store.HistoryStore
	labels     store.LabelStore
	cache      *cache.Cache
	optimistic *optimistic.Manager
	queue      *printqueue.Queue
	events     events.Publisher
	clock      clock.Clock
	log        zerolog.Logger
}

func NewService(stores store.Stores, c *cache.Cache, om *optimistic.Manager, q *printqueue.Queue, pub events.Publisher, clk clock.Clock) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		products:   stores.Products,
		history:    stores.History,
		labels:     stores.Labels,
		cache:      c,
		optimistic: om,
		queue:      q,
		events:     pub,
		clock:      clk,
		log:        logger.Component("placement"),
	}
}

// Search looks a barcode up in the cache, falling back to the store
func (s *Service) Search(ctx context.Context, barcode string) (*models.Product, bool, error) {
	if err := models.ValidateBarcode(barcode); err != nil {
		return nil, false, err
	}
	if p, ok := s.cache.Get(ctx, barcode); ok {
		return p, true, nil
	}

	p, err := s.products.FindByBarcode(ctx, barcode)
	if err != nil {
		return nil, false, err
	}
	s.cache.Put(ctx, *p, false)
	return p, false, nil
}

func (r UpdateRequest) validate() error {
	if err := models.ValidateBarcode(r.Barcode); err != nil {
		return err
	}
	if r.Location == nil && r.Stock == nil {
		return errs.Validation("nothing to update: location or stock required")
	}
	if r.Location != nil {
		if err := models.ValidateLocation(*r.Location); err != nil {
			return err
		}
	}
	if r.Stock != nil {
		if err := models.ValidateStock(*r.Stock); err != nil {
			return err
		}
	}
	if r.ActorID == "" {
		return errs.Validation("actor is required")
	}
	return nil
}

// occupants lists other active products already at location
func (s *Service) occupants(ctx context.Context, p *models.Product, location string) ([]models.Product, error) {
	found, err := s.products.FindByLocation(ctx, location)
	if err != nil {
		return nil, err
	}
	out := found[:0]
	for _, o := range found {
		if o.ID != p.ID {
			out = append(out, o)
		}
	}
	return out, nil
}

// stageAttempts bounds how often Update re-reads a product that another
// device changed between the read and the stage
const stageAttempts = 3

// Update applies a placement change. Any failure of the durable write rolls
// the staged update back before the error is returned.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	if err := req.validate(); err != nil {
		return UpdateResult{}, err
	}

	var (
		p               *models.Product
		proposed        models.Placement
		oldLocation     *string
		locationChanged bool
		updateID        string
	)
	for attempt := 1; ; attempt++ {
		var err error
		p, err = s.products.FindByBarcode(ctx, req.Barcode)
		if err != nil {
			return UpdateResult{}, err
		}

		oldLocation = models.CloneString(p.Location)
		proposed = p.Placement()
		if req.Location != nil {
			proposed.Location = models.CloneString(req.Location)
		}
		if req.Stock != nil {
			proposed.Stock = models.RoundStock(*req.Stock)
		}
		locationChanged = !models.SameLocation(oldLocation, proposed.Location)

		if locationChanged && !req.Confirm {
			occ, err := s.occupants(ctx, p, *proposed.Location)
			if err != nil {
				return UpdateResult{}, err
			}
			if len(occ) > 0 {
				return UpdateResult{NeedsConfirmation: true, Occupants: occ, Product: p}, nil
			}
		}

		updateID, err = s.optimistic.Stage(ctx, p, proposed, req.ActorID, req.DeviceID)
		if err == nil {
			break
		}
		if !errs.Is(err, errs.ErrConflict) || attempt == stageAttempts {
			return UpdateResult{}, err
		}
		s.log.Debug().Int64("product_id", p.ID).Int("attempt", attempt).Msg("product changed before staging, re-reading")
	}
	result := UpdateResult{UpdateID: updateID}

	original := p.Placement()
	p.ApplyPlacement(proposed)
	if err := s.products.SavePlacement(ctx, p); err != nil {
		if _, rbErr := s.optimistic.Rollback(ctx, updateID, "write failed: "+err.Error()); rbErr != nil {
			s.log.Error().Err(rbErr).Str("update_id", updateID).Msg("rollback after failed write also failed")
		}
		return result, errs.Wrapf(err, "update product %s", req.Barcode)
	}

	if err := s.confirm(ctx, updateID); err != nil {
		s.revert(ctx, updateID, p.ID, original, err)
		return result, errs.Wrapf(err, "update product %s", req.Barcode)
	}
	s.cache.Invalidate(ctx, p.Barcode)

	result.Success = true
	result.Product = p

	if locationChanged {
		s.recordMove(ctx, p, oldLocation, req.ActorID, req.DeviceID, req.Reason)
		result.LabelID = s.refreshLabel(ctx, p, req.ActorID, req.DeviceID)
	}

	if req.Print && result.LabelID != 0 {
		jobID, err := s.queue.Enqueue(ctx, []int64{result.LabelID}, req.ActorID, req.DeviceID, req.Priority)
		if err != nil {
			s.log.Error().Err(err).Int64("label_id", result.LabelID).Msg("failed to queue label")
		} else {
			result.JobID = jobID
		}
	}

	s.log.Info().
		Int64("product_id", p.ID).
		Str("barcode", p.Barcode).
		Str("location", p.LocationCode()).
		Float64("stock", p.Stock).
		Str("actor", req.ActorID).
		Msg("📦 product updated")
	return result, nil
}

// confirm records a landed write, retrying once on a store error. A record
// that is no longer staged means the reaper already reverted the write.
func (s *Service) confirm(ctx context.Context, updateID string) error {
	var err error
	for i := 0; i < 2; i++ {
		var ok bool
		ok, err = s.optimistic.Confirm(ctx, updateID)
		if err == nil {
			if !ok {
				return errs.Mark(errs.Newf("update %s was resolved before it could be confirmed", updateID), errs.ErrConflict)
			}
			return nil
		}
		s.log.Warn().Err(err).Str("update_id", updateID).Msg("failed to confirm update")
	}
	return err
}

// revert undoes a durable write whose confirmation failed, so the caller's
// error and the stored placement agree. When the record store is down the
// placement is restored directly and the reaper settles the record later.
func (s *Service) revert(ctx context.Context, updateID string, productID int64, original models.Placement, cause error) {
	_, err := s.optimistic.Rollback(ctx, updateID, "confirm failed: "+cause.Error())
	if err == nil {
		return
	}
	s.log.Warn().Err(err).Str("update_id", updateID).Msg("rollback after failed confirm failed, restoring placement")
	if err := s.optimistic.Restore(ctx, productID, original); err != nil {
		s.log.Error().Err(err).Str("update_id", updateID).Msg("failed to revert unconfirmed write")
	}
}

// refreshLabel upserts the actor's label for p and returns its id, 0 on failure
func (s *Service) refreshLabel(ctx context.Context, p *models.Product, actorID, deviceID string) int64 {
	label := models.NewLabelFor(*p, actorID, deviceID)
	if err := s.labels.Upsert(ctx, &label); err != nil {
		s.log.Error().Err(err).Int64("product_id", p.ID).Msg("failed to refresh label")
		return 0
	}
	return label.ID
}

// recordMove appends the audit entry and publishes the change event
func (s *Service) recordMove(ctx context.Context, p *models.Product, oldLocation *string, actorID, deviceID, reason string) {
	rec := &models.LocationChangeRecord{
		ProductID:   p.ID,
		OldLocation: oldLocation,
		NewLocation: models.CloneString(p.Location),
		ActorID:     actorID,
		DeviceID:    deviceID,
		Reason:      reason,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.history.Append(ctx, rec); err != nil {
		s.log.Error().Err(err).Int64("product_id", p.ID).Msg("failed to append location history")
	}

	ev := events.LocationChanged{
		ProductID:   p.ID,
		Barcode:     p.Barcode,
		OldLocation: rec.OldLocation,
		NewLocation: rec.NewLocation,
		Stock:       p.Stock,
		ActorID:     actorID,
		DeviceID:    deviceID,
		Reason:      reason,
		Timestamp:   rec.CreatedAt,
	}
	if err := s.events.PublishLocationChanged(ctx, ev); err != nil {
		s.log.Warn().Err(err).Int64("product_id", p.ID).Msg("failed to publish location change")
	}
}

// Undo reverts the actor's last change on this device
func (s *Service) Undo(ctx context.Context, actorID, deviceID string) (optimistic.Outcome, error) {
	out, err := s.optimistic.Undo(ctx, actorID, deviceID)
	if err != nil || !out.Success {
		return out, err
	}
	s.afterHistoryMove(ctx, out, out.Operation.After.Location, actorID, deviceID, "undo")
	return out, nil
}

// Redo reapplies the actor's last undone change on this device
func (s *Service) Redo(ctx context.Context, actorID, deviceID string) (optimistic.Outcome, error) {
	out, err := s.optimistic.Redo(ctx, actorID, deviceID)
	if err != nil || !out.Success {
		return out, err
	}
	s.afterHistoryMove(ctx, out, out.Operation.Before.Location, actorID, deviceID, "redo")
	return out, nil
}

func (s *Service) afterHistoryMove(ctx context.Context, out optimistic.Outcome, from *string, actorID, deviceID, reason string) {
	s.cache.Invalidate(ctx, out.Product.Barcode)
	if !models.SameLocation(from, out.Product.Location) {
		s.recordMove(ctx, out.Product, from, actorID, deviceID, reason)
		s.refreshLabel(ctx, out.Product, actorID, deviceID)
	}
}

// History lists the location changes of a product, newest first
func (s *Service) History(ctx context.Context, barcode string, limit int) ([]models.LocationChangeRecord, error) {
	if err := models.ValidateBarcode(barcode); err != nil {
		return nil, err
	}
	p, err := s.products.FindByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.history.ListByProduct(ctx, p.ID, limit)
}

// PrintPending queues every unprinted label of the actor as one job
func (s *Service) PrintPending(ctx context.Context, actorID, deviceID string, priority printqueue.Priority) (string, int, error) {
	pending, err := s.labels.Pending(ctx, actorID)
	if err != nil {
		return "", 0, err
	}
	if len(pending) == 0 {
		return "", 0, nil
	}

	ids := make([]int64, len(pending))
	for i, l := range pending {
		ids[i] = l.ID
	}
	jobID, err := s.queue.Enqueue(ctx, ids, actorID, deviceID, priority)
	if err != nil {
		return "", 0, err
	}
	return jobID, len(ids), nil
}

// Operations returns the undo/redo stack of an actor on a device
func (s *Service) Operations(ctx context.Context, actorID, deviceID string) ([]optimistic.Operation, error) {
	return s.optimistic.History(ctx, actorID, deviceID)
}
