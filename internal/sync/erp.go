package sync

//go:generate mockgen -source=erp.go -destination=mocks/mock_erp.go -package=mocks

import (
	"context"

	"github.com/xelth-com/colocacion/internal/models"
)

// ERPClient is the engine's view of the ERP. Every call may fail with a
// network or authentication error; callers treat those as recoverable.
type ERPClient interface {
	SearchProductByErpID(ctx context.Context, erpID int64) (*models.ErpProduct, error)
	SearchProductByBarcode(ctx context.Context, barcode string) (*models.ErpProduct, error)
	UpdateStock(ctx context.Context, erpID int64, qty float64) error
	UpdateLocation(ctx context.Context, erpID int64, location string) error
	TestConnection(ctx context.Context) (*models.ErpSystemInfo, error)
}

// CacheInvalidator drops cached copies of a product after a local change
type CacheInvalidator interface {
	Invalidate(ctx context.Context, barcode string)
}
