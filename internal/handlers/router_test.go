package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/xelth-com/colocacion/internal/cache"
	"github.com/xelth-com/colocacion/internal/clock"
	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/events"
	"github.com/xelth-com/colocacion/internal/kv/kvtest"
	"github.com/xelth-com/colocacion/internal/metrics"
	"github.com/xelth-com/colocacion/internal/middleware"
	"github.com/xelth-com/colocacion/internal/models"
	"github.com/xelth-com/colocacion/internal/optimistic"
	"github.com/xelth-com/colocacion/internal/printqueue"
	"github.com/xelth-com/colocacion/internal/services/placement"
	"github.com/xelth-com/colocacion/internal/store"
	"github.com/xelth-com/colocacion/internal/sync"
	"github.com/xelth-com/colocacion/internal/sync/mocks"
	"github.com/xelth-com/colocacion/internal/utils"
	"github.com/xelth-com/colocacion/internal/websocket"
)

const testSecret = "router-test-secret"

type routerTestSuite struct {
	suite.Suite
	erp     *mocks.MockERPClient
	mem     *store.MemoryStore
	router  *Router
	product *models.Product
	tokens  map[string]string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(routerTestSuite))
}

func (s *routerTestSuite) SetupTest() {
	cfg := config.NewTestConfig()
	clk := clock.NewMockClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	kvStore, _ := kvtest.New(s.T())
	m := metrics.New(prometheus.NewRegistry())

	s.mem = store.NewMemoryStore()
	s.erp = mocks.NewMockERPClient(gomock.NewController(s.T()))

	c := cache.New(kvStore, cfg.Cache, clk, m)
	om := optimistic.NewManager(s.mem, kvStore, cfg.Optimistic, clk, m)
	q := printqueue.New(kvStore, s.mem, cfg.Queue, clk, m)
	engine := sync.NewEngine(s.mem, s.erp, c, kvStore, cfg.Sync, clk, m)

	s.router = NewRouter(Deps{
		Placement: placement.NewService(s.mem.Stores(), c, om, q, events.Nop{}, clk),
		Sync:      engine,
		Queue:     q,
		Cache:     c,
		Hub:       websocket.NewHub(),
		Metrics:   m,
		JWTSecret: testSecret,
		Version:   "test",
	})

	s.product = &models.Product{
		ErpID:    42,
		Barcode:  "1234567890123",
		Location: models.StringPtr("A010"),
		Stock:    10,
		Status:   models.ProductActive,
	}
	s.Require().NoError(s.mem.Create(context.Background(), s.product))

	s.tokens = map[string]string{}
	for _, role := range []string{utils.RoleOperator, utils.RoleAdmin} {
		tok, err := utils.GenerateToken("user-"+role, role, testSecret, time.Hour)
		s.Require().NoError(err)
		s.tokens[role] = tok
	}
}

func (s *routerTestSuite) do(method, path, role string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[role])
	}
	req.Header.Set(middleware.DeviceHeader, "pda-1")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *routerTestSuite) decode(rec *httptest.ResponseRecorder, v interface{}) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v))
}

func (s *routerTestSuite) TestHealthAndMetricsArePublic() {
	s.Equal(http.StatusOK, s.do("GET", "/health", "", nil).Code)
	s.Equal(http.StatusOK, s.do("GET", "/metrics", "", nil).Code)
	s.Equal(http.StatusUnauthorized, s.do("GET", "/api/products/1234567890123", "", nil).Code)
}

func (s *routerTestSuite) TestProductLookup() {
	rec := s.do("GET", "/api/products/1234567890123", utils.RoleOperator, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var body struct {
		Product models.Product `json:"product"`
		Cached  bool           `json:"cached"`
	}
	s.decode(rec, &body)
	s.Equal("A010", body.Product.LocationCode())
	s.False(body.Cached)

	s.Equal(http.StatusBadRequest, s.do("GET", "/api/products/12", utils.RoleOperator, nil).Code)
	s.Equal(http.StatusNotFound, s.do("GET", "/api/products/9999999999999", utils.RoleOperator, nil).Code)
}

func (s *routerTestSuite) TestUpdateUndoRedo() {
	rec := s.do("PUT", "/api/products/1234567890123", utils.RoleOperator, map[string]interface{}{"location": "B215"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var res placement.UpdateResult
	s.decode(rec, &res)
	s.True(res.Success)
	s.NotZero(res.LabelID)

	rec = s.do("GET", "/api/operations", utils.RoleOperator, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var ops []optimistic.Operation
	s.decode(rec, &ops)
	s.Len(ops, 1)

	rec = s.do("POST", "/api/operations/undo", utils.RoleOperator, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var out optimistic.Outcome
	s.decode(rec, &out)
	s.True(out.Success)
	s.Equal("A010", out.Product.LocationCode())

	rec = s.do("POST", "/api/operations/redo", utils.RoleOperator, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do("GET", "/api/products/1234567890123/history", utils.RoleOperator, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var hist []models.LocationChangeRecord
	s.decode(rec, &hist)
	s.Len(hist, 3)
}

func (s *routerTestSuite) TestUpdateNeedsConfirmation() {
	other := &models.Product{Barcode: "1234567890124", Location: models.StringPtr("B215"), Status: models.ProductActive}
	s.Require().NoError(s.mem.Create(context.Background(), other))

	rec := s.do("PUT", "/api/products/1234567890123", utils.RoleOperator, map[string]interface{}{"location": "B215"})
	s.Equal(http.StatusConflict, rec.Code)
	var res placement.UpdateResult
	s.decode(rec, &res)
	s.True(res.NeedsConfirmation)

	rec = s.do("PUT", "/api/products/1234567890123", utils.RoleOperator, map[string]interface{}{"location": "B215", "confirm": true})
	s.Equal(http.StatusOK, rec.Code)
}

func (s *routerTestSuite) TestUpdateValidation() {
	rec := s.do("PUT", "/api/products/1234567890123", utils.RoleOperator, map[string]interface{}{"stock": -3})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do("PUT", "/api/products/1234567890123", utils.RoleOperator, map[string]interface{}{"location": "B215", "priority": "urgent"})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *routerTestSuite) TestPrintJobLifecycle() {
	rec := s.do("POST", "/api/print/jobs", utils.RoleOperator, map[string]interface{}{"labelIds": []int64{1}, "priority": "high"})
	s.Require().Equal(http.StatusAccepted, rec.Code)
	var created map[string]string
	s.decode(rec, &created)
	jobID := created["jobId"]

	rec = s.do("GET", "/api/print/queue", utils.RoleOperator, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var st printqueue.QueueStatus
	s.decode(rec, &st)
	s.Equal(int64(1), st.QueueLength)

	s.Equal(http.StatusForbidden, s.do("DELETE", "/api/print/jobs/"+jobID, utils.RoleAdmin, nil).Code)
	s.Equal(http.StatusOK, s.do("DELETE", "/api/print/jobs/"+jobID, utils.RoleOperator, nil).Code)
	s.Equal(http.StatusNotFound, s.do("GET", "/api/print/jobs/"+jobID, utils.RoleOperator, nil).Code)
}

func (s *routerTestSuite) TestSyncProduct() {
	s.erp.EXPECT().SearchProductByErpID(gomock.Any(), int64(42)).Return(&models.ErpProduct{
		ID: 42, Barcode: "1234567890123", QtyAvailable: 7, Active: true,
	}, nil)

	rec := s.do("POST", "/api/sync/products/1?strategy=erp_wins", utils.RoleOperator, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var res sync.Result
	s.decode(rec, &res)
	s.True(res.Success)
	s.Equal(1, res.Updated)

	s.Equal(http.StatusBadRequest, s.do("POST", "/api/sync/products/1?strategy=coinflip", utils.RoleOperator, nil).Code)
}

func (s *routerTestSuite) TestSyncProductErpDown() {
	s.erp.EXPECT().SearchProductByErpID(gomock.Any(), int64(42)).
		Return(nil, errs.Mark(errs.New("connection refused"), errs.ErrExternal))

	rec := s.do("POST", "/api/sync/products/1", utils.RoleOperator, nil)
	s.Equal(http.StatusBadGateway, rec.Code)
	var res sync.Result
	s.decode(rec, &res)
	s.False(res.Success)
	s.NotEmpty(res.Errors)
}

func (s *routerTestSuite) TestAdminRoutes() {
	s.Equal(http.StatusForbidden, s.do("POST", "/api/admin/sync/full", utils.RoleOperator, nil).Code)
	s.Equal(http.StatusNoContent, s.do("POST", "/api/admin/print/stats/reset", utils.RoleAdmin, nil).Code)
	s.Equal(http.StatusOK, s.do("GET", "/api/admin/cache", utils.RoleAdmin, nil).Code)
	s.Equal(http.StatusOK, s.do("DELETE", "/api/admin/cache", utils.RoleAdmin, nil).Code)
}
