package optimistic

import (
	"context"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/kv"
	"github.com/xelth-com/colocacion/internal/models"
)

type stack struct {
	Operations []Operation `json:"operations"`
}

func (m *Manager) load(ctx context.Context, actorID, deviceID string) ([]Operation, error) {
	s, err := kv.Get[stack](ctx, m.kv, kv.UndoRedoKey(actorID, deviceID))
	if errs.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Operations, nil
}

func (m *Manager) save(ctx context.Context, actorID, deviceID string, ops []Operation) error {
	return m.kv.Put(ctx, kv.UndoRedoKey(actorID, deviceID), stack{Operations: ops}, m.cfg.HistoryTTL)
}

func (m *Manager) limit() int {
	if m.cfg.HistoryLimit > 0 {
		return m.cfg.HistoryLimit
	}
	return 10
}

// push prepends op, drops redo availability of older entries and truncates
func (m *Manager) push(ctx context.Context, actorID, deviceID string, op Operation) error {
	ops, err := m.load(ctx, actorID, deviceID)
	if err != nil {
		return err
	}
	for i := range ops {
		ops[i].CanRedo = false
	}

	ops = append([]Operation{op}, ops...)
	if len(ops) > m.limit() {
		ops = ops[:m.limit()]
	}
	return m.save(ctx, actorID, deviceID, ops)
}

// History returns the actor+device stack, newest first
func (m *Manager) History(ctx context.Context, actorID, deviceID string) ([]Operation, error) {
	ops, err := m.load(ctx, actorID, deviceID)
	if err != nil {
		return nil, err
	}
	if ops == nil {
		ops = []Operation{}
	}
	return ops, nil
}

// Undo re-applies the before state of the most recent undoable operation
func (m *Manager) Undo(ctx context.Context, actorID, deviceID string) (Outcome, error) {
	ops, err := m.load(ctx, actorID, deviceID)
	if err != nil {
		return Outcome{}, err
	}

	idx := -1
	for i, op := range ops {
		if op.CanUndo {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Outcome{Success: false}, nil
	}

	p, err := m.apply(ctx, ops[idx].ProductID, ops[idx].Before)
	if err != nil {
		return Outcome{}, err
	}

	ops[idx].CanUndo = false
	ops[idx].CanRedo = true
	if err := m.save(ctx, actorID, deviceID, ops); err != nil {
		return Outcome{}, err
	}

	m.metrics.Optimistic("undo")
	m.log.Info().Str("operation_id", ops[idx].ID).Int64("product_id", p.ID).Str("actor", actorID).Msg("↩️ undo applied")
	op := ops[idx]
	return Outcome{Success: true, Operation: &op, Product: p}, nil
}

// Redo re-applies the after state of the most recently undone operation.
// Redoable entries always form a prefix of the stack, so that is its last element.
func (m *Manager) Redo(ctx context.Context, actorID, deviceID string) (Outcome, error) {
	ops, err := m.load(ctx, actorID, deviceID)
	if err != nil {
		return Outcome{}, err
	}

	idx := -1
	for i, op := range ops {
		if !op.CanRedo {
			break
		}
		idx = i
	}
	if idx < 0 {
		return Outcome{Success: false}, nil
	}

	p, err := m.apply(ctx, ops[idx].ProductID, ops[idx].After)
	if err != nil {
		return Outcome{}, err
	}

	ops[idx].CanUndo = true
	ops[idx].CanRedo = false
	if err := m.save(ctx, actorID, deviceID, ops); err != nil {
		return Outcome{}, err
	}

	m.metrics.Optimistic("redo")
	m.log.Info().Str("operation_id", ops[idx].ID).Int64("product_id", p.ID).Str("actor", actorID).Msg("↪️ redo applied")
	op := ops[idx]
	return Outcome{Success: true, Operation: &op, Product: p}, nil
}

// apply writes a placement under the product lock and stamps lastSync
func (m *Manager) apply(ctx context.Context, productID int64, pl models.Placement) (*models.Product, error) {
	lock, err := m.lockProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	defer m.release(ctx, lock)

	p, err := m.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	p.ApplyPlacement(pl)
	now := m.clock.Now()
	p.LastSync = &now
	if err := m.products.SavePlacement(ctx, p); err != nil {
		return nil, errs.Wrapf(err, "apply history to product %d", productID)
	}
	return p, nil
}
