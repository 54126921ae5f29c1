package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tallyhq/tally/internal/models"
	apperrors "github.com/tallyhq/tally/pkg/errors"
)

var (
	// ErrWorkspaceNotFound indicates the requested workspace does not exist.
	ErrWorkspaceNotFound = apperrors.New("WORKSPACE_NOT_FOUND", "Workspace not found", http.StatusNotFound)
	// ErrNotMember rejects actors without an accepted membership in the workspace.
	ErrNotMember = apperrors.New("NOT_WORKSPACE_MEMBER", "You are not a member of this workspace", http.StatusForbidden)
	// ErrNotOwner rejects member-management actions from non-owners.
	ErrNotOwner = apperrors.New("NOT_WORKSPACE_OWNER", "Only the workspace owner can do this", http.StatusForbidden)
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// workspaceOwnerID resolves the owner of a workspace, or ErrWorkspaceNotFound.
func workspaceOwnerID(tx *gorm.DB, workspaceID string) (string, error) {
	var workspace models.Workspace
	if err := tx.Select("id", "owner_id").First(&workspace, "id = ?", workspaceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrWorkspaceNotFound
		}
		return "", fmt.Errorf("load workspace: %w", err)
	}
	return workspace.OwnerID, nil
}

// requireOwner guards owner-only operations. Non-members receive the same
// error as non-owner members; existence of the workspace is not hidden.
func requireOwner(tx *gorm.DB, workspaceID, actorID string) error {
	ownerID, err := workspaceOwnerID(tx, workspaceID)
	if err != nil {
		return err
	}
	if ownerID != actorID {
		return ErrNotOwner
	}
	return nil
}

func hasAcceptedMembership(tx *gorm.DB, workspaceID, userID string) (bool, error) {
	var count int64
	err := tx.Model(&models.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ? AND status = ?", workspaceID, userID, models.StatusAccepted).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count memberships: %w", err)
	}
	return count > 0, nil
}

// requireMember guards member-only operations such as catalogue edits,
// sales and the message board.
func requireMember(tx *gorm.DB, workspaceID, actorID string) error {
	if _, err := workspaceOwnerID(tx, workspaceID); err != nil {
		return err
	}
	member, err := hasAcceptedMembership(tx, workspaceID, actorID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotMember
	}
	return nil
}

// lockForUpdate applies a row lock on dialects that support it. SQLite has a
// single writer per database and rejects the FOR UPDATE syntax, so the clause
// is only added on postgres.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
