package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tallyhq/tally/internal/models"
	apperrors "github.com/tallyhq/tally/pkg/errors"
)

const maxMessageLength = 2000

// ChatService runs the per-workspace message board.
type ChatService struct {
	db *gorm.DB
}

// NewChatService constructs a ChatService.
func NewChatService(db *gorm.DB) (*ChatService, error) {
	if db == nil {
		return nil, errors.New("chat service: db is required")
	}
	return &ChatService{db: db}, nil
}

// PostMessage appends a message to the workspace board. Member only.
func (s *ChatService) PostMessage(ctx context.Context, workspaceID, actorID, content string) (*models.WorkspaceMessage, error) {
	ctx = ensureContext(ctx)
	db := s.db.WithContext(ctx)

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewBadRequest("message content is required")
	}
	if len(content) > maxMessageLength {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("message exceeds %d characters", maxMessageLength))
	}

	message := &models.WorkspaceMessage{
		WorkspaceID: workspaceID,
		UserID:      actorID,
		Content:     content,
	}
	if err := db.Create(message).Error; err != nil {
		return nil, fmt.Errorf("chat service: create message: %w", err)
	}
	return message, nil
}

// ListMessages returns the newest messages first. Member only. Limit defaults
// to 50.
func (s *ChatService) ListMessages(ctx context.Context, workspaceID, actorID string, limit int) ([]models.WorkspaceMessage, error) {
	db := s.db.WithContext(ensureContext(ctx))

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var messages []models.WorkspaceMessage
	err := db.Preload("User").
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("chat service: list messages: %w", err)
	}
	return messages, nil
}

// ClearMessages wipes the workspace board. Owner only.
func (s *ChatService) ClearMessages(ctx context.Context, workspaceID, actorID string) (int64, error) {
	db := s.db.WithContext(ensureContext(ctx))

	if err := requireOwner(db, workspaceID, actorID); err != nil {
		return 0, err
	}

	result := db.Where("workspace_id = ?", workspaceID).Delete(&models.WorkspaceMessage{})
	if result.Error != nil {
		return 0, fmt.Errorf("chat service: clear messages: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// TrimMessages deletes all but the newest keep messages in every workspace.
// Used by the maintenance job to keep the board bounded.
func (s *ChatService) TrimMessages(ctx context.Context, keep int) (int64, error) {
	ctx = ensureContext(ctx)
	if keep <= 0 {
		return 0, errors.New("chat service: keep must be positive")
	}

	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var workspaceIDs []string
		if err := tx.Model(&models.WorkspaceMessage{}).
			Distinct("workspace_id").
			Pluck("workspace_id", &workspaceIDs).Error; err != nil {
			return fmt.Errorf("list workspaces: %w", err)
		}

		for _, workspaceID := range workspaceIDs {
			var cutoffIDs []string
			if err := tx.Model(&models.WorkspaceMessage{}).
				Where("workspace_id = ?", workspaceID).
				Order("created_at DESC").
				Limit(keep).
				Pluck("id", &cutoffIDs).Error; err != nil {
				return fmt.Errorf("list recent messages: %w", err)
			}

			result := tx.
				Where("workspace_id = ? AND id NOT IN ?", workspaceID, cutoffIDs).
				Delete(&models.WorkspaceMessage{})
			if result.Error != nil {
				return fmt.Errorf("trim messages: %w", result.Error)
			}
			removed += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
