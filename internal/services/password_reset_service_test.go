package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func TestPasswordResetRoundTrip(t *testing.T) {
	db := openServiceTestDB(t)
	user, _ := registerTestUser(t, db, "ada@example.com", "Ada")

	users, err := NewUserService(db)
	require.NoError(t, err)

	mailer := &recorderMailer{}
	resets, err := NewPasswordResetService(db, users, mailer)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, resets.RequestReset(ctx, "ADA@example.com"))
	require.Len(t, mailer.sent, 1)

	code := codePattern.FindString(mailer.sent[0].Body)
	require.NotEmpty(t, code)

	require.NoError(t, resets.ConfirmReset(ctx, user.Email, code, "fresh password"))

	_, err = users.Authenticate(ctx, user.Email, "fresh password")
	require.NoError(t, err)

	// Codes are single use.
	err = resets.ConfirmReset(ctx, user.Email, code, "another password")
	require.ErrorIs(t, err, ErrResetCodeInvalid)
}

func TestPasswordResetRejectsWrongOrExpiredCode(t *testing.T) {
	db := openServiceTestDB(t)
	user, _ := registerTestUser(t, db, "ada@example.com", "Ada")

	users, err := NewUserService(db)
	require.NoError(t, err)

	current := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	mailer := &recorderMailer{}
	resets, err := NewPasswordResetService(db, users, mailer,
		WithResetClock(func() time.Time { return current }))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, resets.RequestReset(ctx, user.Email))
	code := codePattern.FindString(mailer.sent[0].Body)
	require.NotEmpty(t, code)

	err = resets.ConfirmReset(ctx, user.Email, "000000", "whatever")
	require.ErrorIs(t, err, ErrResetCodeInvalid)

	// Past the 15 minute expiry the real code stops working too.
	current = current.Add(16 * time.Minute)
	err = resets.ConfirmReset(ctx, user.Email, code, "whatever")
	require.ErrorIs(t, err, ErrResetCodeInvalid)
}

func TestPasswordResetDoesNotRevealAccounts(t *testing.T) {
	db := openServiceTestDB(t)

	users, err := NewUserService(db)
	require.NoError(t, err)

	mailer := &recorderMailer{}
	resets, err := NewPasswordResetService(db, users, mailer)
	require.NoError(t, err)
	ctx := context.Background()

	// Unknown email: silent success, nothing sent.
	require.NoError(t, resets.RequestReset(ctx, "ghost@example.com"))
	require.Empty(t, mailer.sent)

	err = resets.ConfirmReset(ctx, "ghost@example.com", "123456", "whatever")
	require.ErrorIs(t, err, ErrResetCodeInvalid)

	err = resets.ConfirmReset(ctx, "ghost@example.com", "123456", "")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrResetCodeInvalid) // empty password is reported as such
}

func TestDeleteExpiredResetCodes(t *testing.T) {
	db := openServiceTestDB(t)
	user, _ := registerTestUser(t, db, "ada@example.com", "Ada")

	users, err := NewUserService(db)
	require.NoError(t, err)

	current := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	resets, err := NewPasswordResetService(db, users, nil,
		WithResetClock(func() time.Time { return current }))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, resets.RequestReset(ctx, user.Email))
	require.NoError(t, resets.RequestReset(ctx, user.Email))

	removed, err := resets.DeleteExpired(ctx, current.Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	removed, err = resets.DeleteExpired(ctx, current.Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 0, removed)
}
