package models

import (
	"math"
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// ProductStatus is the lifecycle flag mirrored from the ERP 'active' field
type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
)

// Product is the local mirror of an ERP item plus its physical placement.
// Products are never deleted, only deactivated.
type Product struct {
	ID          int64         `gorm:"primaryKey" json:"id"`
	ErpID       int64         `gorm:"uniqueIndex:idx_products_erp_id,where:erp_id > 0" json:"erpId"`
	Barcode     string        `gorm:"type:varchar(14);uniqueIndex;not null" json:"barcode"`
	Reference   string        `gorm:"index" json:"reference"`
	Description string        `json:"description"`
	Location    *string       `gorm:"type:varchar(4);index" json:"location"`
	Stock       float64       `gorm:"type:numeric(14,3);not null;default:0" json:"stock"`
	Status      ProductStatus `gorm:"type:varchar(10);default:'active';index" json:"status"`
	LastSync    *time.Time    `gorm:"index" json:"lastSync"`

	// Last payload received from the ERP, kept for diagnostics
	ErpSnapshot datatypes.JSON `gorm:"type:jsonb" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Product) TableName() string { return "products" }

// GetEntityID returns the product id as a string key
func (p Product) GetEntityID() string { return strconv.FormatInt(p.ID, 10) }

// IsActive reports whether the product is active
func (p Product) IsActive() bool { return p.Status == ProductActive }

// LocationCode returns the location or "" when unplaced
func (p Product) LocationCode() string {
	if p.Location == nil {
		return ""
	}
	return *p.Location
}

// Placement is the subset of a product the optimistic layer snapshots and restores
type Placement struct {
	Location *string    `json:"location"`
	Stock    float64    `json:"stock"`
	LastSync *time.Time `json:"lastSync,omitempty"`
}

// Placement snapshots the mutable placement fields
func (p Product) Placement() Placement {
	return Placement{
		Location: CloneString(p.Location),
		Stock:    p.Stock,
		LastSync: cloneTime(p.LastSync),
	}
}

// ApplyPlacement writes location and stock back onto the product
func (p *Product) ApplyPlacement(pl Placement) {
	p.Location = CloneString(pl.Location)
	p.Stock = RoundStock(pl.Stock)
}

// RestorePlacement writes every snapshotted field back, lastSync included
func (p *Product) RestorePlacement(pl Placement) {
	p.ApplyPlacement(pl)
	p.LastSync = cloneTime(pl.LastSync)
}

// SameAs compares location and stock; lastSync is bookkeeping and ignored
func (pl Placement) SameAs(o Placement) bool {
	return SameLocation(pl.Location, o.Location) && RoundStock(pl.Stock) == RoundStock(o.Stock)
}

// SameLocation compares two nullable location codes
func SameLocation(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// RoundStock rounds a quantity to the 3 decimals the store keeps
func RoundStock(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// CloneString copies a nullable string
func CloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string { return &s }
