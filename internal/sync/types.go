package sync

import (
	"time"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/models"
)

// Strategy decides which side wins a field conflict
type Strategy string

const (
	StrategyErpWins   Strategy = "erp_wins"
	StrategyLocalWins Strategy = "local_wins"
	StrategyTimestamp Strategy = "timestamp"
	StrategyManual    Strategy = "manual"
)

// ParseStrategy validates a strategy name; empty yields ""
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyErpWins, StrategyLocalWins, StrategyTimestamp, StrategyManual:
		return Strategy(s), nil
	}
	return "", errs.Validation("unknown conflict strategy %q", s)
}

// Field is a compared product field, named by its local column
type Field string

const (
	FieldReference   Field = "reference"   // default_code
	FieldDescription Field = "description" // name
	FieldStock       Field = "stock"       // qty_available
	FieldStatus      Field = "status"      // active
)

// Source names the side of a conflict
type Source string

const (
	SourceERP   Source = "erp"
	SourceLocal Source = "local"
)

// Conflict is one diverging field between the local product and the ERP.
// ErpTimestamp is nil when the ERP record carries no write date.
type Conflict struct {
	ProductID      int64       `json:"productId"`
	Field          Field       `json:"field"`
	LocalValue     interface{} `json:"localValue"`
	ErpValue       interface{} `json:"erpValue"`
	LocalTimestamp time.Time   `json:"localTimestamp"`
	ErpTimestamp   *time.Time  `json:"erpTimestamp"`
	DetectedAt     time.Time   `json:"detectedAt"`
	DetectedBy     string      `json:"detectedBy,omitempty"`
}

// Resolution is the outcome of applying a strategy to a conflict
type Resolution struct {
	Field  Field  `json:"field"`
	Winner Source `json:"winner"`
	Reason string `json:"reason"`
}

// Decision records an operator keeping the local value of a field while the
// ERP still reports ErpValue. A later ERP value reopens the conflict.
type Decision struct {
	ProductID int64       `json:"productId"`
	Field     Field       `json:"field"`
	ErpValue  interface{} `json:"erpValue"`
	DecidedBy string      `json:"decidedBy"`
	DecidedAt time.Time   `json:"decidedAt"`
}

// Result summarizes a sync, push or sweep
type Result struct {
	Success    bool         `json:"success"`
	Processed  int          `json:"processed"`
	Updated    int          `json:"updated"`
	Failed     int          `json:"failed"`
	Errors     []string     `json:"errors"`
	DurationMs int64        `json:"durationMs"`
	Conflicts  []Conflict   `json:"conflicts,omitempty"`
	Resolved   []Resolution `json:"resolved,omitempty"`
}

func (r *Result) fail(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err.Error())
}

// ChangeType selects what PushToERP writes
type ChangeType string

const (
	ChangeLocation ChangeType = "location"
	ChangeStock    ChangeType = "stock"
	ChangeBoth     ChangeType = "both"
)

func ParseChangeType(s string) (ChangeType, error) {
	switch ChangeType(s) {
	case ChangeLocation, ChangeStock, ChangeBoth:
		return ChangeType(s), nil
	}
	return "", errs.Validation("unknown change type %q: expected location, stock or both", s)
}

// Connectivity is the answer of CheckConnectivity
type Connectivity struct {
	Connected  bool                  `json:"connected"`
	SystemInfo *models.ErpSystemInfo `json:"systemInfo,omitempty"`
	Error      string                `json:"error,omitempty"`
}

func ParseField(s string) (Field, error) {
	switch Field(s) {
	case FieldReference, FieldDescription, FieldStock, FieldStatus:
		return Field(s), nil
	}
	return "", errs.Validation("unknown field %q", s)
}

func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceERP, SourceLocal:
		return Source(s), nil
	}
	return "", errs.Validation("unknown winner %q: expected erp or local", s)
}
