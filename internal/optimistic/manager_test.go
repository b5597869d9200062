package optimistic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/xelth-com/colocacion/internal/clock"
	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/kv"
	"github.com/xelth-com/colocacion/internal/kv/kvtest"
	"github.com/xelth-com/colocacion/internal/models"
	"github.com/xelth-com/colocacion/internal/store"
)

type managerTestSuite struct {
	suite.Suite
	ctx      context.Context
	products *store.MemoryStore
	kv       *kv.Store
	clock    *clock.MockClock
	mgr      *Manager
	synced   time.Time
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(managerTestSuite))
}

func (s *managerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.products = store.NewMemoryStore()
	s.kv, _ = kvtest.New(s.T())
	s.clock = clock.NewMockClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	s.mgr = NewManager(s.products, s.kv, config.NewTestConfig().Optimistic, s.clock, nil)
	s.synced = time.Date(2024, 2, 28, 18, 0, 0, 0, time.UTC)
}

func (s *managerTestSuite) seed(barcode, location string, stock float64) *models.Product {
	synced := s.synced
	p := &models.Product{
		Barcode:  barcode,
		Location: models.StringPtr(location),
		Stock:    stock,
		Status:   models.ProductActive,
		LastSync: &synced,
	}
	s.Require().NoError(s.products.Create(s.ctx, p))
	return p
}

// mutate mimics the caller: stage, then write the proposed placement
func (s *managerTestSuite) mutate(p *models.Product, location string, stock float64) string {
	proposed := models.Placement{Location: models.StringPtr(location), Stock: stock}
	id, err := s.mgr.Stage(s.ctx, p, proposed, "user-1", "dev-1")
	s.Require().NoError(err)

	p.ApplyPlacement(proposed)
	now := s.clock.Now()
	p.LastSync = &now
	s.Require().NoError(s.products.SavePlacement(s.ctx, p))
	return id
}

func (s *managerTestSuite) reload(id int64) *models.Product {
	p, err := s.products.FindByID(s.ctx, id)
	s.Require().NoError(err)
	return p
}

func (s *managerTestSuite) TestRollbackRestoresSnapshot() {
	p := s.seed("1234567890123", "A010", 10)
	id := s.mutate(p, "B215", 4)

	ok, err := s.mgr.Rollback(s.ctx, id, "write failed: disk full")
	s.Require().NoError(err)
	s.True(ok)

	got := s.reload(p.ID)
	s.Equal("A010", got.LocationCode())
	s.Equal(10.0, got.Stock)
	s.Require().NotNil(got.LastSync)
	s.True(got.LastSync.Equal(s.synced))

	rec, err := s.mgr.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(StateRolledBack, rec.State())
	s.Equal("write failed: disk full", rec.RollbackReason)
}

func (s *managerTestSuite) TestTerminalStatesAreExclusive() {
	p := s.seed("1234567890123", "A010", 10)
	id := s.mutate(p, "B215", 4)

	ok, err := s.mgr.Confirm(s.ctx, id)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.mgr.Rollback(s.ctx, id, "late")
	s.Require().NoError(err)
	s.False(ok, "rollback after confirm must not apply")
	s.Equal("B215", s.reload(p.ID).LocationCode())

	ok, err = s.mgr.Confirm(s.ctx, id)
	s.Require().NoError(err)
	s.False(ok)

	rec, err := s.mgr.Get(s.ctx, id)
	s.Require().NoError(err)
	s.True(rec.Confirmed)
	s.False(rec.RolledBack)
}

func (s *managerTestSuite) TestUnknownUpdate() {
	_, err := s.mgr.Confirm(s.ctx, "missing")
	s.True(errs.Is(err, errs.ErrNotFound))

	_, err = s.mgr.Rollback(s.ctx, "missing", "x")
	s.True(errs.Is(err, errs.ErrNotFound))
}

func (s *managerTestSuite) TestStageLocksProduct() {
	p := s.seed("1234567890123", "A010", 10)
	id := s.mutate(p, "B215", 4)

	_, err := s.mgr.Stage(s.ctx, p, models.Placement{Stock: 1}, "user-2", "dev-2")
	s.True(errs.Is(err, errs.ErrBusy))

	_, err = s.mgr.Confirm(s.ctx, id)
	s.Require().NoError(err)

	_, err = s.mgr.Stage(s.ctx, p, models.Placement{Stock: 1}, "user-2", "dev-2")
	s.NoError(err, "lock must be released on confirm")
}

func (s *managerTestSuite) TestUndoRedoRoundTrip() {
	p := s.seed("1234567890123", "A010", 10)
	id := s.mutate(p, "B215", 4)
	_, err := s.mgr.Confirm(s.ctx, id)
	s.Require().NoError(err)

	out, err := s.mgr.Undo(s.ctx, "user-1", "dev-1")
	s.Require().NoError(err)
	s.True(out.Success)
	s.Equal("A010", s.reload(p.ID).LocationCode())
	s.Equal(10.0, s.reload(p.ID).Stock)

	out, err = s.mgr.Redo(s.ctx, "user-1", "dev-1")
	s.Require().NoError(err)
	s.True(out.Success)
	s.Equal("B215", s.reload(p.ID).LocationCode())
	s.Equal(4.0, s.reload(p.ID).Stock)

	ops, err := s.mgr.History(s.ctx, "user-1", "dev-1")
	s.Require().NoError(err)
	s.Require().Len(ops, 1)
	s.True(ops[0].CanUndo)
	s.False(ops[0].CanRedo)
}

func (s *managerTestSuite) TestUndoRedoOrdering() {
	p := s.seed("1234567890123", "A010", 10)
	for _, loc := range []string{"B215", "C300"} {
		id := s.mutate(p, loc, 10)
		_, err := s.mgr.Confirm(s.ctx, id)
		s.Require().NoError(err)
	}

	for i := 0; i < 2; i++ {
		out, err := s.mgr.Undo(s.ctx, "user-1", "dev-1")
		s.Require().NoError(err)
		s.Require().True(out.Success)
	}
	s.Equal("A010", s.reload(p.ID).LocationCode())

	out, err := s.mgr.Undo(s.ctx, "user-1", "dev-1")
	s.Require().NoError(err)
	s.False(out.Success, "nothing left to undo")

	out, err = s.mgr.Redo(s.ctx, "user-1", "dev-1")
	s.Require().NoError(err)
	s.Require().True(out.Success)
	s.Equal("B215", s.reload(p.ID).LocationCode(), "redo replays oldest undone first")
}

func (s *managerTestSuite) TestNewChangeClearsRedo() {
	p := s.seed("1234567890123", "A010", 10)
	id := s.mutate(p, "B215", 10)
	_, err := s.mgr.Confirm(s.ctx, id)
	s.Require().NoError(err)

	_, err = s.mgr.Undo(s.ctx, "user-1", "dev-1")
	s.Require().NoError(err)

	p = s.reload(p.ID)
	id = s.mutate(p, "C300", 10)
	_, err = s.mgr.Confirm(s.ctx, id)
	s.Require().NoError(err)

	out, err := s.mgr.Redo(s.ctx, "user-1", "dev-1")
	s.Require().NoError(err)
	s.False(out.Success)
}

func (s *managerTestSuite) TestHistoryIsBounded() {
	p := s.seed("1234567890123", "A010", 0)
	for i := 0; i < 12; i++ {
		id := s.mutate(p, "A010", float64(i+1))
		_, err := s.mgr.Confirm(s.ctx, id)
		s.Require().NoError(err)
	}

	ops, err := s.mgr.History(s.ctx, "user-1", "dev-1")
	s.Require().NoError(err)
	s.Len(ops, 10)
	s.Equal(12.0, ops[0].After.Stock)
}

func (s *managerTestSuite) TestHistoryIsPerDevice() {
	p := s.seed("1234567890123", "A010", 10)
	id := s.mutate(p, "B215", 10)
	_, err := s.mgr.Confirm(s.ctx, id)
	s.Require().NoError(err)

	out, err := s.mgr.Undo(s.ctx, "user-1", "dev-2")
	s.Require().NoError(err)
	s.False(out.Success)

	ops, err := s.mgr.History(s.ctx, "user-1", "dev-2")
	s.Require().NoError(err)
	s.Empty(ops)
}

func (s *managerTestSuite) TestCleanupExpired() {
	p := s.seed("1234567890123", "A010", 10)
	stale := s.mutate(p, "B215", 4)

	q := s.seed("1234567890124", "C300", 1)
	s.clock.Add(4 * time.Minute)
	fresh := s.mutate(q, "C301", 2)

	s.clock.Add(90 * time.Second)
	n, err := s.mgr.CleanupExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	rec, err := s.mgr.Get(s.ctx, stale)
	s.Require().NoError(err)
	s.Equal(ReasonExpired, rec.RollbackReason)
	s.Equal("A010", s.reload(p.ID).LocationCode())

	rec, err = s.mgr.Get(s.ctx, fresh)
	s.Require().NoError(err)
	s.Equal(StateStaged, rec.State())

	n, err = s.mgr.CleanupExpired(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *managerTestSuite) TestRollbackFailureKeepsStaged() {
	p := s.seed("1234567890123", "A010", 10)
	id := s.mutate(p, "B215", 4)

	s.products.SaveHook = func(*models.Product) error { return errs.New("db down") }
	_, err := s.mgr.Rollback(s.ctx, id, "x")
	s.Error(err)
	s.products.SaveHook = nil

	rec, err := s.mgr.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(StateStaged, rec.State())

	ok, err := s.mgr.Rollback(s.ctx, id, "retry")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *managerTestSuite) TestStageRejectsStaleRead() {
	p := s.seed("1234567890123", "A010", 10)
	stale := *p

	// another device changes the stock after p was read
	p.Stock = 5
	s.Require().NoError(s.products.SavePlacement(s.ctx, p))

	_, err := s.mgr.Stage(s.ctx, &stale, models.Placement{Location: models.StringPtr("B215"), Stock: 10}, "user-1", "dev-1")
	s.True(errs.Is(err, errs.ErrConflict), "got %v", err)

	holder, err := s.kv.Holder(s.ctx, kv.ProductLockKey(p.ID))
	s.Require().NoError(err)
	s.Empty(holder, "lock released on a stale read")

	id, err := s.mgr.Stage(s.ctx, s.reload(p.ID), models.Placement{Location: models.StringPtr("B215"), Stock: 5}, "user-1", "dev-1")
	s.Require().NoError(err)
	rec, err := s.mgr.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(5.0, rec.Original.Stock)
}

func (s *managerTestSuite) TestRollbackOfUnwrittenUpdateSkipsStore() {
	p := s.seed("1234567890123", "A010", 10)
	id, err := s.mgr.Stage(s.ctx, p, models.Placement{Location: models.StringPtr("B215"), Stock: 4}, "user-1", "dev-1")
	s.Require().NoError(err)

	s.products.SaveHook = func(*models.Product) error { return errs.New("db down") }
	ok, err := s.mgr.Rollback(s.ctx, id, "write failed: db down")
	s.products.SaveHook = nil
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("A010", s.reload(p.ID).LocationCode())
}

func (s *managerTestSuite) TestRollbackLeavesLaterChangeAlone() {
	p := s.seed("1234567890123", "A010", 10)
	id := s.mutate(p, "B215", 4)

	// the lock expired and someone else moved the product on
	other := s.reload(p.ID)
	other.Location = models.StringPtr("C300")
	s.Require().NoError(s.products.SavePlacement(s.ctx, other))

	ok, err := s.mgr.Rollback(s.ctx, id, ReasonExpired)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("C300", s.reload(p.ID).LocationCode())
}

func (s *managerTestSuite) TestRestoreWritesPlacement() {
	p := s.seed("1234567890123", "A010", 10)
	original := p.Placement()
	s.mutate(p, "B215", 4)

	s.Require().NoError(s.mgr.Restore(s.ctx, p.ID, original))
	got := s.reload(p.ID)
	s.Equal("A010", got.LocationCode())
	s.Equal(10.0, got.Stock)
	s.True(got.LastSync.Equal(s.synced))
}
