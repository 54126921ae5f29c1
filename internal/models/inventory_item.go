package models

// InventoryItem is a sellable product scoped to one workspace. Items
// referenced by historical sale lines are never hard-deleted; IsActive is the
// soft-delete marker, and the active-name uniqueness rule only considers
// active rows.
type InventoryItem struct {
	BaseModel

	WorkspaceID string     `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Workspace   *Workspace `gorm:"foreignKey:WorkspaceID;constraint:OnDelete:CASCADE" json:"-"`

	Name       string  `gorm:"not null" json:"name"`
	Price      float64 `gorm:"not null" json:"price"`
	StockLevel int     `gorm:"not null" json:"stock_level"`
	ImagePath  string  `json:"image_path,omitempty"`
	IsActive   bool    `gorm:"not null;default:true" json:"is_active"`
}
