package models

import "time"

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Membership statuses.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
)

// MembershipKind tags the logical variant a WorkspaceMember row represents.
// The nullable columns are the storage serialisation of this variant; code
// should branch on Kind, not on scattered nil checks.
type MembershipKind int

const (
	// KindAccepted is a joined member with a linked user account.
	KindAccepted MembershipKind = iota
	// KindPendingRegistered is an invite addressed to an existing account.
	KindPendingRegistered
	// KindPendingUnregistered is an invite addressed to a bare email.
	KindPendingUnregistered
	// KindInvalid marks a row violating the membership invariants.
	KindInvalid
)

// WorkspaceMember links a workspace to a user, or to a not-yet-registered
// invitee identified only by email.
//
// Uniqueness is enforced by partial indexes created in database.AutoMigrate:
// one accepted row per (workspace, user), one token-bearing pending row per
// (workspace, user), one pending row per (workspace, invite_email) when no
// user is linked, and globally unique invite tokens.
type WorkspaceMember struct {
	BaseModel

	WorkspaceID string     `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Workspace   *Workspace `gorm:"foreignKey:WorkspaceID;constraint:OnDelete:CASCADE" json:"-"`

	UserID *string `gorm:"type:uuid;index" json:"user_id,omitempty"`
	User   *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Role        string  `gorm:"not null;default:member" json:"role"`
	InvitedByID *string `gorm:"type:uuid" json:"invited_by,omitempty"`

	InviteEmail *string `gorm:"index" json:"invite_email,omitempty"`
	InviteToken *string `gorm:"uniqueIndex" json:"-"`

	Status   string     `gorm:"not null;default:pending" json:"status"`
	JoinedAt *time.Time `json:"joined_at,omitempty"`
}

// Kind classifies the row into its membership variant.
func (m *WorkspaceMember) Kind() MembershipKind {
	switch {
	case m.Status == StatusAccepted && m.UserID != nil:
		return KindAccepted
	case m.Status == StatusPending && m.UserID != nil && m.InviteToken != nil:
		return KindPendingRegistered
	case m.Status == StatusPending && m.UserID == nil && m.InviteEmail != nil && m.InviteToken != nil:
		return KindPendingUnregistered
	default:
		return KindInvalid
	}
}
