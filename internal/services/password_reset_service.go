package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/pkg/crypto"
	apperrors "github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/logger"
	mailpkg "github.com/tallyhq/tally/pkg/mail"
)

const (
	defaultResetCodeDigits = 6
	defaultResetCodeExpiry = 15 * time.Minute
)

// ErrResetCodeInvalid covers every failed reset confirmation: wrong code,
// expired code, already-used code or unknown email. One error keeps the
// endpoint from leaking which part was wrong.
var ErrResetCodeInvalid = apperrors.New("RESET_CODE_INVALID", "Invalid or expired reset code", http.StatusBadRequest)

// PasswordResetOption customises PasswordResetService behaviour.
type PasswordResetOption func(*PasswordResetService)

// WithResetCodeExpiry overrides the reset code lifetime.
func WithResetCodeExpiry(d time.Duration) PasswordResetOption {
	return func(s *PasswordResetService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithResetClock injects a custom clock primarily for testing.
func WithResetClock(clock func() time.Time) PasswordResetOption {
	return func(s *PasswordResetService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// PasswordResetService issues and redeems emailed password reset codes.
type PasswordResetService struct {
	db     *gorm.DB
	users  *UserService
	mailer mailpkg.Mailer
	digits int
	expiry time.Duration
	now    func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(db *gorm.DB, users *UserService, mailer mailpkg.Mailer, opts ...PasswordResetOption) (*PasswordResetService, error) {
	if db == nil {
		return nil, errors.New("password reset service: db is required")
	}
	if users == nil {
		return nil, errors.New("password reset service: user service is required")
	}

	service := &PasswordResetService{
		db:     db,
		users:  users,
		mailer: mailer,
		digits: defaultResetCodeDigits,
		expiry: defaultResetCodeExpiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// RequestReset issues a reset code for the account behind the email and mails
// it. Unknown emails succeed silently so the endpoint cannot be used to probe
// which accounts exist.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	code, err := crypto.GenerateDigitCode(s.digits)
	if err != nil {
		return fmt.Errorf("password reset service: generate code: %w", err)
	}

	token := &models.PasswordResetToken{
		UserID:    user.ID,
		CodeHash:  hashResetCode(code),
		ExpiresAt: s.now().UTC().Add(s.expiry),
	}
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("password reset service: store code: %w", err)
	}

	s.sendResetEmail(ctx, user.Email, code)
	return nil
}

// ConfirmReset redeems a code and sets the new password. The code is marked
// used and any other outstanding codes for the account are invalidated.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, email, code, newPassword string) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(newPassword) == "" {
		return apperrors.NewBadRequest("password is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrResetCodeInvalid
		}
		return err
	}

	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token models.PasswordResetToken
		err := tx.First(&token,
			"user_id = ? AND code_hash = ? AND used_at IS NULL AND expires_at > ?",
			user.ID, hashResetCode(code), now).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrResetCodeInvalid
			}
			return fmt.Errorf("password reset service: find code: %w", err)
		}

		if err := tx.Model(&models.PasswordResetToken{}).
			Where("user_id = ? AND used_at IS NULL", user.ID).
			Update("used_at", now).Error; err != nil {
			return fmt.Errorf("password reset service: consume codes: %w", err)
		}

		hashed, err := crypto.HashPassword(newPassword)
		if err != nil {
			return fmt.Errorf("password reset service: hash password: %w", err)
		}
		return tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("password_hash", hashed).Error
	})
}

// DeleteExpired removes reset codes that expired before the given time.
// Called by the maintenance job.
func (s *PasswordResetService) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ensureContext(ctx)).
		Where("expires_at < ?", before.UTC()).
		Delete(&models.PasswordResetToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("password reset service: delete expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *PasswordResetService) sendResetEmail(ctx context.Context, email, code string) {
	if s.mailer == nil {
		return
	}

	msg := mailpkg.Message{
		To:      []string{email},
		Subject: "Your Tally password reset code",
		Body: fmt.Sprintf("Hello,\n\nYour password reset code is: %s\n\n"+
			"It expires in %d minutes. If you did not request a reset, you can ignore this email.\n",
			code, int(s.expiry.Minutes())),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mailpkg.ErrSMTPDisabled) {
		logger.Warn("reset email delivery failed", zap.Error(err))
	}
}

func hashResetCode(code string) string {
	checksum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(checksum[:])
}
