package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// OdooString is a custom string type that handles Odoo's dynamic typing.
// Odoo returns `false` (boolean) for empty text fields instead of an empty string.
type OdooString string

// UnmarshalJSON handles dynamic typing from Odoo
func (os *OdooString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*os = OdooString(s)
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if !b {
			*os = ""
			return nil
		}
		*os = "true"
		return nil
	}

	return errors.New("OdooString: cannot unmarshal value into string")
}

// Value implements driver.Valuer interface for database storage
func (os OdooString) Value() (driver.Value, error) {
	return string(os), nil
}

// Scan implements sql.Scanner interface for database retrieval
func (os *OdooString) Scan(value interface{}) error {
	if value == nil {
		*os = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*os = OdooString(v)
	case []byte:
		*os = OdooString(string(v))
	default:
		return fmt.Errorf("failed to scan OdooString: %v", value)
	}
	return nil
}

// String returns native string value
func (os OdooString) String() string {
	return string(os)
}

// OdooDateTimeLayout is the server-side datetime format (always UTC)
const OdooDateTimeLayout = "2006-01-02 15:04:05"

// OdooTime decodes Odoo datetimes ("2006-01-02 15:04:05" in UTC, or false)
type OdooTime struct {
	time.Time
}

// UnmarshalJSON accepts the Odoo layout, RFC3339, or false
func (ot *OdooTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var b bool
		if err := json.Unmarshal(data, &b); err == nil && !b {
			ot.Time = time.Time{}
			return nil
		}
		return errors.New("OdooTime: cannot unmarshal value into time")
	}
	if s == "" {
		ot.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(OdooDateTimeLayout, s); err == nil {
		ot.Time = t.UTC()
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("OdooTime: unsupported layout %q", s)
	}
	ot.Time = t.UTC()
	return nil
}

// MarshalJSON writes the Odoo layout
func (ot OdooTime) MarshalJSON() ([]byte, error) {
	if ot.IsZero() {
		return []byte("false"), nil
	}
	return json.Marshal(ot.UTC().Format(OdooDateTimeLayout))
}

// ErpProduct is the ERP's view of a product (Odoo 'product.product')
type ErpProduct struct {
	ID           int64      `json:"id"`
	DefaultCode  OdooString `json:"default_code"`
	Barcode      OdooString `json:"barcode"`
	Name         string     `json:"name"`
	QtyAvailable float64    `json:"qty_available"`
	Active       bool       `json:"active"`
	WriteDate    OdooTime   `json:"write_date"`
}

// Status maps the ERP active flag onto the local status
func (e ErpProduct) Status() ProductStatus {
	if e.Active {
		return ProductActive
	}
	return ProductInactive
}

// ErpSystemInfo describes the ERP endpoint a connectivity check reached
type ErpSystemInfo struct {
	ServerVersion string `json:"serverVersion"`
	Database      string `json:"database"`
	UID           int64  `json:"uid"`
}
