// Package store holds the durable collaborators of the placement core:
// products, their location history and the per-creator print labels.
package store

import (
	"context"
	"time"

	"github.com/xelth-com/colocacion/internal/models"
)

// ProductStore is keyed CRUD over products. Products are never deleted.
type ProductStore interface {
	FindByID(ctx context.Context, id int64) (*models.Product, error)
	FindByBarcode(ctx context.Context, barcode string) (*models.Product, error)
	// FindByLocation returns active products placed at location
	FindByLocation(ctx context.Context, location string) ([]models.Product, error)
	// FindStale returns active products never synced or synced before cutoff, oldest first
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Product, error)
	Create(ctx context.Context, p *models.Product) error
	// Save rewrites the whole row
	Save(ctx context.Context, p *models.Product) error
	// SavePlacement writes only location, stock and lastSync
	SavePlacement(ctx context.Context, p *models.Product) error
	// SaveSynced writes only the ERP-owned columns: erp id, reference,
	// description, stock, status, ERP snapshot and lastSync
	SaveSynced(ctx context.Context, p *models.Product) error
	// SetErpID links a product to its ERP record
	SetErpID(ctx context.Context, id, erpID int64) error
	// TouchSynced stamps lastSync without rewriting any other column
	TouchSynced(ctx context.Context, id int64, at time.Time) error
}

// HistoryStore appends and lists location change records
type HistoryStore interface {
	Append(ctx context.Context, rec *models.LocationChangeRecord) error
	ListByProduct(ctx context.Context, productID int64, limit int) ([]models.LocationChangeRecord, error)
}

// LabelStore manages per-creator print labels
type LabelStore interface {
	// Upsert creates or refreshes the (product, creator) label and resets it to unprinted
	Upsert(ctx context.Context, label *models.PrintLabel) error
	FindByIDs(ctx context.Context, ids []int64) ([]models.PrintLabel, error)
	Pending(ctx context.Context, actorID string) ([]models.PrintLabel, error)
	MarkPrinted(ctx context.Context, ids []int64, at time.Time) error
	// PurgePrinted deletes labels printed before cutoff
	PurgePrinted(ctx context.Context, cutoff time.Time) (int64, error)
}

// Stores bundles the three durable collaborators
type Stores struct {
	Products ProductStore
	History  HistoryStore
	Labels   LabelStore
}
