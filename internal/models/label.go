package models

import "time"

// LocationChangeRecord is an append-only audit entry, one per confirmed location mutation
type LocationChangeRecord struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	ProductID   int64     `gorm:"index;not null" json:"productId"`
	OldLocation *string   `gorm:"type:varchar(4)" json:"oldLocation"`
	NewLocation *string   `gorm:"type:varchar(4)" json:"newLocation"`
	ActorID     string    `gorm:"index;not null" json:"actorId"`
	DeviceID    string    `json:"deviceId"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

func (LocationChangeRecord) TableName() string { return "location_changes" }

// PrintLabel is a label snapshot owned by one creator. Each (product, creator)
// pair has at most one label, refreshed on every location-bearing update.
type PrintLabel struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	ProductID   int64      `gorm:"uniqueIndex:idx_label_owner;not null" json:"productId"`
	CreatedBy   string     `gorm:"uniqueIndex:idx_label_owner;not null" json:"createdBy"`
	DeviceID    string     `json:"deviceId"`
	Barcode     string     `gorm:"type:varchar(14)" json:"barcode"`
	Reference   string     `json:"reference"`
	Description string     `json:"description"`
	Location    string     `gorm:"type:varchar(4)" json:"location"`
	IsPrinted   bool       `gorm:"default:false;index" json:"isPrinted"`
	PrintedAt   *time.Time `gorm:"index" json:"printedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (PrintLabel) TableName() string { return "print_labels" }

// NewLabelFor builds an unprinted label snapshot of the product for a creator
func NewLabelFor(p Product, actorID, deviceID string) PrintLabel {
	return PrintLabel{
		ProductID:   p.ID,
		CreatedBy:   actorID,
		DeviceID:    deviceID,
		Barcode:     p.Barcode,
		Reference:   p.Reference,
		Description: p.Description,
		Location:    p.LocationCode(),
	}
}
