package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkspaceCreateAndGet(t *testing.T) {
	db := openServiceTestDB(t)
	owner, _ := registerTestUser(t, db, "owner@example.com", "Olive Owner")

	workspaces, err := NewWorkspaceService(db)
	require.NoError(t, err)

	ctx := context.Background()
	workspace, err := workspaces.Create(ctx, owner.ID, "Second Shop")
	require.NoError(t, err)

	found, err := workspaces.Get(ctx, workspace.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, "Second Shop", found.Name)

	_, err = workspaces.Create(ctx, owner.ID, "   ")
	require.Error(t, err)
}

func TestWorkspaceGetRequiresMembership(t *testing.T) {
	db := openServiceTestDB(t)
	_, workspace := registerTestUser(t, db, "owner@example.com", "Olive")
	outsider, _ := registerTestUser(t, db, "outsider@example.com", "Oscar")

	workspaces, err := NewWorkspaceService(db)
	require.NoError(t, err)

	_, err = workspaces.Get(context.Background(), workspace.ID, outsider.ID)
	require.ErrorIs(t, err, ErrNotMember)

	_, err = workspaces.Get(context.Background(), "missing-id", outsider.ID)
	require.ErrorIs(t, err, ErrWorkspaceNotFound)
}

func TestWorkspaceRenameOwnerOnly(t *testing.T) {
	db := openServiceTestDB(t)
	owner, workspace := registerTestUser(t, db, "owner@example.com", "Olive")
	member, _ := registerTestUser(t, db, "member@example.com", "Milo")
	joinWorkspace(t, db, workspace.ID, owner.ID, member)

	workspaces, err := NewWorkspaceService(db)
	require.NoError(t, err)

	ctx := context.Background()
	renamed, err := workspaces.Rename(ctx, workspace.ID, owner.ID, "Corner Store")
	require.NoError(t, err)
	require.Equal(t, "Corner Store", renamed.Name)

	_, err = workspaces.Rename(ctx, workspace.ID, member.ID, "Milo's Empire")
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestWorkspaceListForUser(t *testing.T) {
	db := openServiceTestDB(t)
	owner, first := registerTestUser(t, db, "owner@example.com", "Olive")
	member, own := registerTestUser(t, db, "member@example.com", "Milo")
	joinWorkspace(t, db, first.ID, owner.ID, member)

	workspaces, err := NewWorkspaceService(db)
	require.NoError(t, err)

	list, err := workspaces.ListForUser(context.Background(), member.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	ids := []string{list[0].ID, list[1].ID}
	require.Contains(t, ids, own.ID)
	require.Contains(t, ids, first.ID)
}
