package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tallyhq/tally/internal/models"
	apperrors "github.com/tallyhq/tally/pkg/errors"
)

// WorkspaceOption customises WorkspaceService behaviour.
type WorkspaceOption func(*WorkspaceService)

// WithWorkspaceClock injects a custom clock primarily for testing.
func WithWorkspaceClock(clock func() time.Time) WorkspaceOption {
	return func(s *WorkspaceService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WorkspaceService manages workspace lifecycle and ownership.
type WorkspaceService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewWorkspaceService constructs a WorkspaceService.
func NewWorkspaceService(db *gorm.DB, opts ...WorkspaceOption) (*WorkspaceService, error) {
	if db == nil {
		return nil, errors.New("workspace service: db is required")
	}

	service := &WorkspaceService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// createWorkspaceTx inserts a workspace together with the owner's accepted
// membership. The two rows must commit or fail as one: a workspace without
// its owner row would lock the owner out of every member-guarded operation.
func createWorkspaceTx(tx *gorm.DB, name, ownerID string, now time.Time) (*models.Workspace, error) {
	workspace := &models.Workspace{
		Name:    name,
		OwnerID: ownerID,
	}
	if err := tx.Create(workspace).Error; err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	joined := now
	owner := &models.WorkspaceMember{
		WorkspaceID: workspace.ID,
		UserID:      &ownerID,
		Role:        models.RoleOwner,
		Status:      models.StatusAccepted,
		JoinedAt:    &joined,
	}
	if err := tx.Create(owner).Error; err != nil {
		return nil, fmt.Errorf("create owner membership: %w", err)
	}

	return workspace, nil
}

// Create provisions a new workspace owned by the given user.
func (s *WorkspaceService) Create(ctx context.Context, ownerID, name string) (*models.Workspace, error) {
	ctx = ensureContext(ctx)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewBadRequest("workspace name is required")
	}

	var workspace *models.Workspace
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		workspace, err = createWorkspaceTx(tx, name, ownerID, s.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return workspace, nil
}

// Rename changes the workspace name. Owner only.
func (s *WorkspaceService) Rename(ctx context.Context, workspaceID, actorID, name string) (*models.Workspace, error) {
	ctx = ensureContext(ctx)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewBadRequest("workspace name is required")
	}

	db := s.db.WithContext(ctx)
	if err := requireOwner(db, workspaceID, actorID); err != nil {
		return nil, err
	}

	if err := db.Model(&models.Workspace{}).
		Where("id = ?", workspaceID).
		Update("name", name).Error; err != nil {
		return nil, fmt.Errorf("workspace service: rename: %w", err)
	}

	return s.get(db, workspaceID)
}

// Get returns a workspace the actor belongs to.
func (s *WorkspaceService) Get(ctx context.Context, workspaceID, actorID string) (*models.Workspace, error) {
	db := s.db.WithContext(ensureContext(ctx))
	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}
	return s.get(db, workspaceID)
}

// ListForUser returns every workspace the user has an accepted membership in,
// oldest first.
func (s *WorkspaceService) ListForUser(ctx context.Context, userID string) ([]models.Workspace, error) {
	db := s.db.WithContext(ensureContext(ctx))

	var workspaces []models.Workspace
	err := db.
		Joins("JOIN workspace_members ON workspace_members.workspace_id = workspaces.id").
		Where("workspace_members.user_id = ? AND workspace_members.status = ?", userID, models.StatusAccepted).
		Order("workspaces.created_at ASC").
		Find(&workspaces).Error
	if err != nil {
		return nil, fmt.Errorf("workspace service: list: %w", err)
	}
	return workspaces, nil
}

func (s *WorkspaceService) get(db *gorm.DB, workspaceID string) (*models.Workspace, error) {
	var workspace models.Workspace
	if err := db.First(&workspace, "id = ?", workspaceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("workspace service: load: %w", err)
	}
	return &workspace, nil
}
