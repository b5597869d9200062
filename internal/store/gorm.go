package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/models"
)

// GormStore implements every store interface on one gorm handle
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Stores exposes the gorm store through the collaborator interfaces
func (s *GormStore) Stores() Stores {
	return Stores{Products: s, History: s, Labels: s}
}

func translate(err error, entity string, key interface{}) error {
	if err == nil {
		return nil
	}
	if errs.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound(entity, key)
	}
	if errs.Is(err, gorm.ErrDuplicatedKey) {
		return errs.Mark(errs.Wrapf(err, "%s %v", entity, key), errs.ErrConflict)
	}
	return errs.Wrapf(err, "%s %v", entity, key)
}

func (s *GormStore) FindByID(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err, "product", id)
	}
	return &p, nil
}

func (s *GormStore) FindByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).Where("barcode = ?", barcode).First(&p).Error; err != nil {
		return nil, translate(err, "product", barcode)
	}
	return &p, nil
}

func (s *GormStore) FindByLocation(ctx context.Context, location string) ([]models.Product, error) {
	var products []models.Product
	err := s.db.WithContext(ctx).
		Where("location = ? AND status = ?", location, models.ProductActive).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, errs.Wrapf(err, "products at %s", location)
	}
	return products, nil
}

func (s *GormStore) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Product, error) {
	var products []models.Product
	err := s.db.WithContext(ctx).
		Where("status = ? AND (last_sync IS NULL OR last_sync < ?)", models.ProductActive, cutoff).
		Order("last_sync ASC NULLS FIRST").
		Order("id").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, errs.Wrap(err, "stale products")
	}
	return products, nil
}

func (s *GormStore) Create(ctx context.Context, p *models.Product) error {
	return translate(s.db.WithContext(ctx).Create(p).Error, "product", p.Barcode)
}

func (s *GormStore) Save(ctx context.Context, p *models.Product) error {
	return translate(s.db.WithContext(ctx).Save(p).Error, "product", p.ID)
}

// updateColumns writes the named columns of p and bumps updated_at
func (s *GormStore) updateColumns(ctx context.Context, id int64, values map[string]interface{}) error {
	values["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return translate(res.Error, "product", id)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("product", id)
	}
	return nil
}

func (s *GormStore) SavePlacement(ctx context.Context, p *models.Product) error {
	return s.updateColumns(ctx, p.ID, map[string]interface{}{
		"location":  p.Location,
		"stock":     p.Stock,
		"last_sync": p.LastSync,
	})
}

func (s *GormStore) SaveSynced(ctx context.Context, p *models.Product) error {
	return s.updateColumns(ctx, p.ID, map[string]interface{}{
		"erp_id":       p.ErpID,
		"reference":    p.Reference,
		"description":  p.Description,
		"stock":        p.Stock,
		"status":       p.Status,
		"erp_snapshot": p.ErpSnapshot,
		"last_sync":    p.LastSync,
	})
}

func (s *GormStore) SetErpID(ctx context.Context, id, erpID int64) error {
	return s.updateColumns(ctx, id, map[string]interface{}{"erp_id": erpID})
}

func (s *GormStore) TouchSynced(ctx context.Context, id int64, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("last_sync", at)
	if res.Error != nil {
		return errs.Wrapf(res.Error, "touch product %d", id)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("product", id)
	}
	return nil
}

func (s *GormStore) Append(ctx context.Context, rec *models.LocationChangeRecord) error {
	return translate(s.db.WithContext(ctx).Create(rec).Error, "location change", rec.ProductID)
}

func (s *GormStore) ListByProduct(ctx context.Context, productID int64, limit int) ([]models.LocationChangeRecord, error) {
	var records []models.LocationChangeRecord
	q := s.db.WithContext(ctx).Where("product_id = ?", productID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, errs.Wrapf(err, "history of product %d", productID)
	}
	return records, nil
}

func (s *GormStore) Upsert(ctx context.Context, label *models.PrintLabel) error {
	label.IsPrinted = false
	label.PrintedAt = nil

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}, {Name: "created_by"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"device_id", "barcode", "reference", "description", "location",
			"is_printed", "printed_at", "updated_at",
		}),
	}).Create(label).Error
	if err != nil {
		return translate(err, "label", label.ProductID)
	}

	// On conflict postgres does not hand back the existing id through Create
	if label.ID == 0 {
		var existing models.PrintLabel
		err := s.db.WithContext(ctx).
			Where("product_id = ? AND created_by = ?", label.ProductID, label.CreatedBy).
			First(&existing).Error
		if err != nil {
			return translate(err, "label", label.ProductID)
		}
		*label = existing
	}
	return nil
}

func (s *GormStore) FindByIDs(ctx context.Context, ids []int64) ([]models.PrintLabel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var labels []models.PrintLabel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&labels).Error; err != nil {
		return nil, errs.Wrap(err, "labels by id")
	}
	return labels, nil
}

func (s *GormStore) Pending(ctx context.Context, actorID string) ([]models.PrintLabel, error) {
	var labels []models.PrintLabel
	err := s.db.WithContext(ctx).
		Where("created_by = ? AND is_printed = ?", actorID, false).
		Order("updated_at DESC").
		Find(&labels).Error
	if err != nil {
		return nil, errs.Wrapf(err, "pending labels of %s", actorID)
	}
	return labels, nil
}

func (s *GormStore) MarkPrinted(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Model(&models.PrintLabel{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"is_printed": true, "printed_at": at}).Error
	return errs.Wrap(err, "mark labels printed")
}

func (s *GormStore) PurgePrinted(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("is_printed = ? AND printed_at < ?", true, cutoff).
		Delete(&models.PrintLabel{})
	if res.Error != nil {
		return 0, errs.Wrap(res.Error, "purge printed labels")
	}
	return res.RowsAffected, nil
}
