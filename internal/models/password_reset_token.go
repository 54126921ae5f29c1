package models

import "time"

// PasswordResetToken stores the hash of an emailed reset code. Codes are
// single-use and expire.
type PasswordResetToken struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	CodeHash  string     `gorm:"not null" json:"-"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}
