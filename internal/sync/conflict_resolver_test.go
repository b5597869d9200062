package sync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/xelth-com/colocacion/internal/models"
)

func TestDetectConflicts(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	local := &models.Product{ID: 1, Reference: "R1", Description: "Tornillo", Stock: 10, Status: models.ProductActive}
	erp := &models.ErpProduct{DefaultCode: "R2", Name: "Tornillo", QtyAvailable: 10.0004, Active: false}

	got := detectConflicts(local, erp, now)

	var fields []Field
	for _, c := range got {
		fields = append(fields, c.Field)
	}
	want := []Field{FieldReference, FieldStatus}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("conflict fields mismatch (-want +got):\n%s", diff)
	}
	if got[0].ErpTimestamp != nil {
		t.Error("missing write_date should leave ErpTimestamp nil")
	}
}

func TestDetectConflictsClampsNegativeErpStock(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	erp := &models.ErpProduct{Name: "Tornillo", QtyAvailable: -2, Active: true}

	empty := &models.Product{ID: 1, Description: "Tornillo", Stock: 0, Status: models.ProductActive}
	if got := detectConflicts(empty, erp, now); len(got) != 0 {
		t.Errorf("local 0 against ERP -2 should not conflict, got %+v", got)
	}

	stocked := &models.Product{ID: 1, Description: "Tornillo", Stock: 4, Status: models.ProductActive}
	got := detectConflicts(stocked, erp, now)
	if len(got) != 1 || got[0].ErpValue != 0.0 {
		t.Fatalf("want one stock conflict with ERP value 0, got %+v", got)
	}
	if err := applyValue(stocked, got[0].Field, got[0].ErpValue); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func TestResolveConflict(t *testing.T) {
	local := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	older := local.Add(-time.Hour)
	newer := local.Add(time.Hour)

	cases := []struct {
		name     string
		strategy Strategy
		erpTS    *time.Time
		want     Source
	}{
		{"erp wins", StrategyErpWins, &older, SourceERP},
		{"local wins", StrategyLocalWins, &newer, SourceLocal},
		{"timestamp local newer", StrategyTimestamp, &older, SourceLocal},
		{"timestamp erp newer", StrategyTimestamp, &newer, SourceERP},
		{"timestamp without erp date", StrategyTimestamp, nil, SourceERP},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Conflict{Field: FieldStock, LocalTimestamp: local, ErpTimestamp: tc.erpTS}
			if got := resolveConflict(c, tc.strategy).Winner; got != tc.want {
				t.Errorf("want %s, got %s", tc.want, got)
			}
		})
	}
}

func TestApplyValueAfterJSONRoundTrip(t *testing.T) {
	c := Conflict{Field: FieldStock, ErpValue: 7.5}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Conflict
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	p := &models.Product{Stock: 10}
	if err := applyValue(p, decoded.Field, decoded.ErpValue); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if p.Stock != 7.5 {
		t.Errorf("want stock 7.5, got %v", p.Stock)
	}

	if err := applyValue(p, FieldStatus, "archived"); err == nil {
		t.Error("unknown status should be rejected")
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"", "erp_wins", "local_wins", "timestamp", "manual"} {
		if _, err := ParseStrategy(s); err != nil {
			t.Errorf("%q should parse: %v", s, err)
		}
	}
	if _, err := ParseStrategy("newest"); err == nil {
		t.Error("unknown strategy should be rejected")
	}
}
