package models

import "time"

// Sale records one committed checkout. Lines are created with the sale and
// immutable afterwards.
type Sale struct {
	BaseModel

	WorkspaceID string     `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Workspace   *Workspace `gorm:"foreignKey:WorkspaceID;constraint:OnDelete:CASCADE" json:"-"`

	RecordedByID string `gorm:"type:uuid;not null;index" json:"recorded_by"`
	RecordedBy   *User  `gorm:"foreignKey:RecordedByID" json:"-"`

	OccurredAt time.Time `gorm:"not null;index" json:"occurred_at"`
	Total      float64   `gorm:"not null" json:"total"`

	Lines []SaleLine `gorm:"foreignKey:SaleID" json:"lines,omitempty"`
}

// SaleLine copies the unit price at sale time so later catalogue edits do not
// rewrite history. The RESTRICT constraint keeps referenced items from being
// hard-deleted.
type SaleLine struct {
	BaseModel

	SaleID string `gorm:"type:uuid;not null;index" json:"sale_id"`
	Sale   *Sale  `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE" json:"-"`

	ItemID string         `gorm:"type:uuid;not null;index" json:"item_id"`
	Item   *InventoryItem `gorm:"foreignKey:ItemID;constraint:OnDelete:RESTRICT" json:"item,omitempty"`

	Quantity        int     `gorm:"not null" json:"quantity"`
	UnitPrice       float64 `gorm:"not null" json:"unit_price"`
	DiscountPercent float64 `gorm:"not null;default:0" json:"discount_percent"`
	Subtotal        float64 `gorm:"not null" json:"subtotal"`
}
