package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestMembershipKindClassification(t *testing.T) {
	now := time.Now()

	accepted := WorkspaceMember{
		UserID:   strptr("user-1"),
		Status:   StatusAccepted,
		JoinedAt: &now,
	}
	require.Equal(t, KindAccepted, accepted.Kind())

	pendingRegistered := WorkspaceMember{
		UserID:      strptr("user-1"),
		InviteEmail: strptr("user@example.com"),
		InviteToken: strptr("tok"),
		Status:      StatusPending,
	}
	require.Equal(t, KindPendingRegistered, pendingRegistered.Kind())

	pendingUnregistered := WorkspaceMember{
		InviteEmail: strptr("new@example.com"),
		InviteToken: strptr("tok"),
		Status:      StatusPending,
	}
	require.Equal(t, KindPendingUnregistered, pendingUnregistered.Kind())
}

func TestMembershipKindRejectsInvariantViolations(t *testing.T) {
	// Accepted without a linked user.
	require.Equal(t, KindInvalid, (&WorkspaceMember{Status: StatusAccepted}).Kind())

	// Pending email invite without a token is not sendable.
	require.Equal(t, KindInvalid, (&WorkspaceMember{
		InviteEmail: strptr("new@example.com"),
		Status:      StatusPending,
	}).Kind())

	// Pending with neither user nor email.
	require.Equal(t, KindInvalid, (&WorkspaceMember{Status: StatusPending, InviteToken: strptr("tok")}).Kind())
}
