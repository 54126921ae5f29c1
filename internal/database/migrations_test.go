package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tallyhq/tally/internal/models"
)

func openMigratedTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func seedWorkspace(t *testing.T, db *gorm.DB) (*models.User, *models.Workspace) {
	t.Helper()

	owner := &models.User{Email: "owner@example.com", PasswordHash: "x", Name: "Owner"}
	require.NoError(t, db.Create(owner).Error)

	ws := &models.Workspace{Name: "Shop", OwnerID: owner.ID}
	require.NoError(t, db.Create(ws).Error)

	return owner, ws
}

func TestPendingEmailInviteUniquePerWorkspace(t *testing.T) {
	db := openMigratedTestDB(t)
	owner, ws := seedWorkspace(t, db)

	email := "new@example.com"
	token1, token2 := "tok-1", "tok-2"

	first := models.WorkspaceMember{
		WorkspaceID: ws.ID,
		Role:        models.RoleMember,
		InvitedByID: &owner.ID,
		InviteEmail: &email,
		InviteToken: &token1,
		Status:      models.StatusPending,
	}
	require.NoError(t, db.Create(&first).Error)

	second := models.WorkspaceMember{
		WorkspaceID: ws.ID,
		Role:        models.RoleMember,
		InvitedByID: &owner.ID,
		InviteEmail: &email,
		InviteToken: &token2,
		Status:      models.StatusPending,
	}
	require.Error(t, db.Create(&second).Error)

	var count int64
	require.NoError(t, db.Model(&models.WorkspaceMember{}).
		Where("workspace_id = ? AND invite_email = ?", ws.ID, email).
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestAcceptedMembershipUniquePerUser(t *testing.T) {
	db := openMigratedTestDB(t)
	owner, ws := seedWorkspace(t, db)

	now := time.Now()
	first := models.WorkspaceMember{
		WorkspaceID: ws.ID,
		UserID:      &owner.ID,
		Role:        models.RoleOwner,
		Status:      models.StatusAccepted,
		JoinedAt:    &now,
	}
	require.NoError(t, db.Create(&first).Error)

	dup := models.WorkspaceMember{
		WorkspaceID: ws.ID,
		UserID:      &owner.ID,
		Role:        models.RoleMember,
		Status:      models.StatusAccepted,
		JoinedAt:    &now,
	}
	require.Error(t, db.Create(&dup).Error)
}

func TestInviteTokenGloballyUnique(t *testing.T) {
	db := openMigratedTestDB(t)
	owner, ws := seedWorkspace(t, db)

	other := &models.Workspace{Name: "Second Shop", OwnerID: owner.ID}
	require.NoError(t, db.Create(other).Error)

	email1, email2 := "a@example.com", "b@example.com"
	token := "shared-token"

	require.NoError(t, db.Create(&models.WorkspaceMember{
		WorkspaceID: ws.ID,
		InvitedByID: &owner.ID,
		InviteEmail: &email1,
		InviteToken: &token,
		Status:      models.StatusPending,
	}).Error)

	require.Error(t, db.Create(&models.WorkspaceMember{
		WorkspaceID: other.ID,
		InvitedByID: &owner.ID,
		InviteEmail: &email2,
		InviteToken: &token,
		Status:      models.StatusPending,
	}).Error)
}

func TestActiveItemNameUniqueIgnoresDeactivated(t *testing.T) {
	db := openMigratedTestDB(t)
	_, ws := seedWorkspace(t, db)

	first := models.InventoryItem{WorkspaceID: ws.ID, Name: "Widget", Price: 10, StockLevel: 3, IsActive: true}
	require.NoError(t, db.Create(&first).Error)

	dup := models.InventoryItem{WorkspaceID: ws.ID, Name: "Widget", Price: 12, StockLevel: 1, IsActive: true}
	require.Error(t, db.Create(&dup).Error)

	// Deactivate the original; the name becomes reusable.
	require.NoError(t, db.Model(&first).Update("is_active", false).Error)
	fresh := models.InventoryItem{WorkspaceID: ws.ID, Name: "Widget", Price: 12, StockLevel: 1, IsActive: true}
	require.NoError(t, db.Create(&fresh).Error)
}
