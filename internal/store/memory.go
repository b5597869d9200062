package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/models"
)

// MemoryStore is an in-process implementation of every store interface.
// Values are copied in and out so callers never share memory with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[int64]models.Product
	history  []models.LocationChangeRecord
	labels   map[int64]models.PrintLabel
	nextID   int64

	// SaveHook, when set, runs before every product write; a non-nil error aborts it
	SaveHook func(p *models.Product) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[int64]models.Product),
		labels:   make(map[int64]models.PrintLabel),
	}
}

func (s *MemoryStore) Stores() Stores {
	return Stores{Products: s, History: s, Labels: s}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneProduct(p models.Product) *models.Product {
	out := p
	out.Location = models.CloneString(p.Location)
	if p.LastSync != nil {
		t := *p.LastSync
		out.LastSync = &t
	}
	return &out
}

func (s *MemoryStore) FindByID(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, errs.NotFound("product", id)
	}
	return cloneProduct(p), nil
}

func (s *MemoryStore) FindByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Barcode == barcode {
			return cloneProduct(p), nil
		}
	}
	return nil, errs.NotFound("product", barcode)
}

func (s *MemoryStore) FindByLocation(ctx context.Context, location string) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Product
	for _, p := range s.products {
		if p.IsActive() && p.LocationCode() == location {
			out = append(out, *cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Product
	for _, p := range s.products {
		if !p.IsActive() {
			continue
		}
		if p.LastSync == nil || p.LastSync.Before(cutoff) {
			out = append(out, *cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastSync, out[j].LastSync
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case a.Equal(*b):
			return out[i].ID < out[j].ID
		default:
			return a.Before(*b)
		}
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) checkUnique(p *models.Product) error {
	for id, other := range s.products {
		if id == p.ID {
			continue
		}
		if other.Barcode == p.Barcode {
			return errs.Mark(errs.Newf("barcode %s already used by product %d", p.Barcode, id), errs.ErrConflict)
		}
		if p.ErpID > 0 && other.ErpID == p.ErpID {
			return errs.Mark(errs.Newf("erp id %d already used by product %d", p.ErpID, id), errs.ErrConflict)
		}
	}
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique(p); err != nil {
		return err
	}
	p.ID = s.id()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = models.ProductActive
	}
	s.products[p.ID] = *cloneProduct(*p)
	return nil
}

func (s *MemoryStore) Save(ctx context.Context, p *models.Product) error {
	if s.SaveHook != nil {
		if err := s.SaveHook(p); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; !ok {
		return errs.NotFound("product", p.ID)
	}
	if err := s.checkUnique(p); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = *cloneProduct(*p)
	return nil
}

// update runs the hook then applies change to the stored copy of product id
func (s *MemoryStore) update(p *models.Product, change func(stored *models.Product)) error {
	if s.SaveHook != nil {
		if err := s.SaveHook(p); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.products[p.ID]
	if !ok {
		return errs.NotFound("product", p.ID)
	}
	change(&stored)
	if err := s.checkUnique(&stored); err != nil {
		return err
	}
	stored.UpdatedAt = time.Now().UTC()
	p.UpdatedAt = stored.UpdatedAt
	s.products[p.ID] = *cloneProduct(stored)
	return nil
}

func (s *MemoryStore) SavePlacement(ctx context.Context, p *models.Product) error {
	return s.update(p, func(stored *models.Product) {
		stored.Location = models.CloneString(p.Location)
		stored.Stock = p.Stock
		stored.LastSync = p.LastSync
	})
}

func (s *MemoryStore) SaveSynced(ctx context.Context, p *models.Product) error {
	return s.update(p, func(stored *models.Product) {
		stored.ErpID = p.ErpID
		stored.Reference = p.Reference
		stored.Description = p.Description
		stored.Stock = p.Stock
		stored.Status = p.Status
		stored.ErpSnapshot = p.ErpSnapshot
		stored.LastSync = p.LastSync
	})
}

func (s *MemoryStore) SetErpID(ctx context.Context, id, erpID int64) error {
	return s.update(&models.Product{ID: id}, func(stored *models.Product) {
		stored.ErpID = erpID
	})
}

func (s *MemoryStore) TouchSynced(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return errs.NotFound("product", id)
	}
	p.LastSync = &at
	s.products[id] = p
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, rec *models.LocationChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.id()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.history = append(s.history, *rec)
	return nil
}

func (s *MemoryStore) ListByProduct(ctx context.Context, productID int64, limit int) ([]models.LocationChangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.LocationChangeRecord
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ProductID != productID {
			continue
		}
		out = append(out, s.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, label *models.PrintLabel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	label.IsPrinted = false
	label.PrintedAt = nil
	label.UpdatedAt = now

	for id, existing := range s.labels {
		if existing.ProductID == label.ProductID && existing.CreatedBy == label.CreatedBy {
			label.ID = id
			label.CreatedAt = existing.CreatedAt
			s.labels[id] = *label
			return nil
		}
	}

	label.ID = s.id()
	label.CreatedAt = now
	s.labels[label.ID] = *label
	return nil
}

func (s *MemoryStore) FindByIDs(ctx context.Context, ids []int64) ([]models.PrintLabel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.PrintLabel
	for _, id := range ids {
		if l, ok := s.labels[id]; ok {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Pending(ctx context.Context, actorID string) ([]models.PrintLabel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.PrintLabel
	for _, l := range s.labels {
		if l.CreatedBy == actorID && !l.IsPrinted {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkPrinted(ctx context.Context, ids []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		l, ok := s.labels[id]
		if !ok {
			continue
		}
		l.IsPrinted = true
		printedAt := at
		l.PrintedAt = &printedAt
		s.labels[id] = l
	}
	return nil
}

func (s *MemoryStore) PurgePrinted(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, l := range s.labels {
		if l.IsPrinted && l.PrintedAt != nil && l.PrintedAt.Before(cutoff) {
			delete(s.labels, id)
			n++
		}
	}
	return n, nil
}
