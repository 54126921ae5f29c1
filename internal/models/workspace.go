package models

import "gorm.io/datatypes"

// Workspace is the tenant boundary: inventory, sales, chat and memberships
// all hang off exactly one workspace.
type Workspace struct {
	BaseModel

	Name    string  `gorm:"not null" json:"name"`
	OwnerID string  `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner   *User   `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"owner,omitempty"`

	Settings datatypes.JSON `json:"settings,omitempty"`

	Members  []WorkspaceMember  `gorm:"foreignKey:WorkspaceID" json:"members,omitempty"`
	Items    []InventoryItem    `gorm:"foreignKey:WorkspaceID" json:"-"`
	Sales    []Sale             `gorm:"foreignKey:WorkspaceID" json:"-"`
	Messages []WorkspaceMessage `gorm:"foreignKey:WorkspaceID" json:"-"`
}
