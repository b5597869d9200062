package sync

import (
	"time"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/models"
)

// detectConflicts compares the fixed field set of a local product with its ERP record
func detectConflicts(local *models.Product, erp *models.ErpProduct, now time.Time) []Conflict {
	var erpTS *time.Time
	if !erp.WriteDate.IsZero() {
		t := erp.WriteDate.Time
		erpTS = &t
	}

	base := Conflict{
		ProductID:      local.ID,
		LocalTimestamp: local.UpdatedAt,
		ErpTimestamp:   erpTS,
		DetectedAt:     now,
	}

	var out []Conflict
	add := func(field Field, localValue, erpValue interface{}) {
		c := base
		c.Field, c.LocalValue, c.ErpValue = field, localValue, erpValue
		out = append(out, c)
	}

	if local.Reference != erp.DefaultCode.String() {
		add(FieldReference, local.Reference, erp.DefaultCode.String())
	}
	if local.Description != erp.Name {
		add(FieldDescription, local.Description, erp.Name)
	}
	if models.RoundStock(local.Stock) != erpStock(erp) {
		add(FieldStock, models.RoundStock(local.Stock), erpStock(erp))
	}
	if local.Status != erp.Status() {
		add(FieldStatus, string(local.Status), string(erp.Status()))
	}
	return out
}

// erpStock is the ERP quantity as the store can hold it. Oversold products
// report negative availability, which is kept at 0 locally.
func erpStock(erp *models.ErpProduct) float64 {
	q := models.RoundStock(erp.QtyAvailable)
	if q < 0 {
		return 0
	}
	return q
}

// resolveConflict picks the winning side. The timestamp strategy needs a real
// ERP write date; without one it falls back to the ERP side and says so.
func resolveConflict(c Conflict, strategy Strategy) Resolution {
	switch strategy {
	case StrategyLocalWins:
		return Resolution{Field: c.Field, Winner: SourceLocal, Reason: "local_wins strategy"}
	case StrategyTimestamp:
		if c.ErpTimestamp == nil {
			return Resolution{Field: c.Field, Winner: SourceERP, Reason: "erp record has no write_date, timestamp strategy fell back to erp_wins"}
		}
		if c.LocalTimestamp.After(*c.ErpTimestamp) {
			return Resolution{Field: c.Field, Winner: SourceLocal, Reason: "local change is newer than erp write_date"}
		}
		return Resolution{Field: c.Field, Winner: SourceERP, Reason: "erp write_date is newer or equal"}
	default:
		return Resolution{Field: c.Field, Winner: SourceERP, Reason: "erp_wins strategy"}
	}
}

// applyValue writes a conflict value onto the product. Values may have been
// round-tripped through JSON, so stock arrives as float64 and the rest as strings.
func applyValue(p *models.Product, field Field, value interface{}) error {
	switch field {
	case FieldReference, FieldDescription, FieldStatus:
		s, ok := value.(string)
		if !ok {
			return errs.Newf("field %s: expected string, got %T", field, value)
		}
		switch field {
		case FieldReference:
			p.Reference = s
		case FieldDescription:
			p.Description = s
		default:
			if s != string(models.ProductActive) && s != string(models.ProductInactive) {
				return errs.Newf("field status: unknown value %q", s)
			}
			p.Status = models.ProductStatus(s)
		}
	case FieldStock:
		f, ok := value.(float64)
		if !ok {
			return errs.Newf("field stock: expected number, got %T", value)
		}
		if err := models.ValidateStock(models.RoundStock(f)); err != nil {
			return err
		}
		p.Stock = models.RoundStock(f)
	default:
		return errs.Newf("unknown field %q", field)
	}
	return nil
}
