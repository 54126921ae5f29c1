package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/tallyhq/tally/internal/models"
)

// AutoMigrate creates or updates the database schema for all models, then
// applies the conditional uniqueness rules AutoMigrate cannot express.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Workspace{},
		&models.WorkspaceMember{},
		&models.InventoryItem{},
		&models.Sale{},
		&models.SaleLine{},
		&models.WorkspaceMessage{},
		&models.PasswordResetToken{},
	); err != nil {
		return err
	}

	return createPartialIndexes(db)
}

// partialIndexes are the storage-level guarantees behind the membership and
// catalogue invariants. Concurrent invites race on these, so they must live
// in the database rather than in application pre-checks. Supported by both
// sqlite and postgres.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_members_accepted_unique
		ON workspace_members (workspace_id, user_id)
		WHERE user_id IS NOT NULL AND status = 'accepted'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_members_pending_user_unique
		ON workspace_members (workspace_id, user_id)
		WHERE user_id IS NOT NULL AND status = 'pending' AND invite_token IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_members_pending_email_unique
		ON workspace_members (workspace_id, invite_email)
		WHERE invite_email IS NOT NULL AND status = 'pending' AND user_id IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_active_name_unique
		ON inventory_items (workspace_id, name)
		WHERE is_active`,
}

func createPartialIndexes(db *gorm.DB) error {
	for _, ddl := range partialIndexes {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("create partial index: %w", err)
		}
	}
	return nil
}
