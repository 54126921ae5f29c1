package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tallyhq/tally/internal/database"
	"github.com/tallyhq/tally/internal/models"
	mailpkg "github.com/tallyhq/tally/pkg/mail"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// registerTestUser creates an account with its starter workspace and returns both.
func registerTestUser(t *testing.T, db *gorm.DB, email, name string) (*models.User, *models.Workspace) {
	t.Helper()

	users, err := NewUserService(db)
	require.NoError(t, err)

	user, workspace, err := users.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: "p@ssW0rd!",
		Name:     name,
	})
	require.NoError(t, err)
	return user, workspace
}

// joinWorkspace runs the full invite/accept flow to add the user as a member.
func joinWorkspace(t *testing.T, db *gorm.DB, workspaceID, ownerID string, user *models.User) {
	t.Helper()

	memberships, err := NewMembershipService(db, nil)
	require.NoError(t, err)

	invite, err := memberships.Invite(context.Background(), workspaceID, ownerID, user.Email)
	require.NoError(t, err)
	require.NotNil(t, invite.InviteToken)

	_, err = memberships.AcceptInvite(context.Background(), *invite.InviteToken, user.ID)
	require.NoError(t, err)
}

// recorderMailer captures outbound messages instead of delivering them.
type recorderMailer struct {
	sent []mailpkg.Message
	err  error
}

func (m *recorderMailer) Send(_ context.Context, msg mailpkg.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}
