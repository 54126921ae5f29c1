package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/pkg/crypto"
	apperrors "github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/logger"
	mailpkg "github.com/tallyhq/tally/pkg/mail"
	"github.com/tallyhq/tally/pkg/metrics"
)

const defaultInviteTokenBytes = 24

var (
	// ErrSelfInvite rejects owners inviting themselves.
	ErrSelfInvite = apperrors.New("SELF_INVITE", "You cannot invite yourself", http.StatusBadRequest)
	// ErrAlreadyMember signals the invitee already belongs to the workspace.
	ErrAlreadyMember = apperrors.New("ALREADY_MEMBER", "This user is already a member of the workspace", http.StatusConflict)
	// ErrDuplicateInvite signals a pending invitation already exists for the invitee.
	ErrDuplicateInvite = apperrors.New("DUPLICATE_INVITE", "A pending invitation already exists for this recipient", http.StatusConflict)
	// ErrInviteNotFound indicates no pending invitation matches the token or id.
	ErrInviteNotFound = apperrors.New("INVITE_NOT_FOUND", "Invitation not found or no longer pending", http.StatusNotFound)
	// ErrNotIntendedRecipient rejects acceptance by anyone the invite was not addressed to.
	ErrNotIntendedRecipient = apperrors.New("NOT_INTENDED_RECIPIENT", "This invitation was addressed to someone else", http.StatusForbidden)
	// ErrCannotRemoveOwner keeps the owner's membership permanent.
	ErrCannotRemoveOwner = apperrors.New("CANNOT_REMOVE_OWNER", "The workspace owner cannot be removed", http.StatusBadRequest)
	// ErrMemberNotFound indicates the target user has no membership in the workspace.
	ErrMemberNotFound = apperrors.New("MEMBER_NOT_FOUND", "No membership found for this user", http.StatusNotFound)
)

// MembershipOption customises MembershipService behaviour.
type MembershipOption func(*MembershipService)

// WithInviteBaseURL configures the base URL used to build invite links.
func WithInviteBaseURL(url string) MembershipOption {
	return func(s *MembershipService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInviteTokenSize adjusts the random token length in bytes.
func WithInviteTokenSize(size int) MembershipOption {
	return func(s *MembershipService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithMembershipClock injects a custom clock primarily for testing.
func WithMembershipClock(clock func() time.Time) MembershipOption {
	return func(s *MembershipService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// MembershipService runs the invitation and membership state machine.
//
// Concurrency-sensitive transitions (duplicate invites, double accepts) are
// settled by the partial unique indexes rather than by pre-checks; pre-checks
// only exist to return friendlier errors on the common path.
type MembershipService struct {
	db          *gorm.DB
	mailer      mailpkg.Mailer
	baseURL     string
	tokenLength int
	now         func() time.Time
}

// NewMembershipService constructs a MembershipService. The mailer may be nil,
// in which case invitation emails are skipped.
func NewMembershipService(db *gorm.DB, mailer mailpkg.Mailer, opts ...MembershipOption) (*MembershipService, error) {
	if db == nil {
		return nil, errors.New("membership service: db is required")
	}

	service := &MembershipService{
		db:          db,
		mailer:      mailer,
		tokenLength: defaultInviteTokenBytes,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Invite creates a pending invitation for the given email address. Owner only.
// If the email belongs to a registered account the invitation is linked to it;
// otherwise it is addressed to the bare email and linked on acceptance.
func (s *MembershipService) Invite(ctx context.Context, workspaceID, actorID, email string) (*models.WorkspaceMember, error) {
	ctx = ensureContext(ctx)
	db := s.db.WithContext(ctx)

	if err := requireOwner(db, workspaceID, actorID); err != nil {
		return nil, err
	}

	email = normaliseEmail(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewBadRequest("invalid email address")
	}

	var actor models.User
	if err := db.First(&actor, "id = ?", actorID).Error; err != nil {
		return nil, fmt.Errorf("membership service: load actor: %w", err)
	}
	if actor.Email == email {
		return nil, ErrSelfInvite
	}

	var inviteeID *string
	var invitee models.User
	err := db.First(&invitee, "email = ?", email).Error
	switch {
	case err == nil:
		if invitee.ID == actorID {
			return nil, ErrSelfInvite
		}
		accepted, err := hasAcceptedMembership(db, workspaceID, invitee.ID)
		if err != nil {
			return nil, err
		}
		if accepted {
			return nil, ErrAlreadyMember
		}
		inviteeID = &invitee.ID
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Unregistered recipient; the invite stays addressed to the email.
	default:
		return nil, fmt.Errorf("membership service: find invitee: %w", err)
	}

	token, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, fmt.Errorf("membership service: generate token: %w", err)
	}

	invite := &models.WorkspaceMember{
		WorkspaceID: workspaceID,
		UserID:      inviteeID,
		Role:        models.RoleMember,
		InvitedByID: &actorID,
		InviteEmail: &email,
		InviteToken: &token,
		Status:      models.StatusPending,
	}

	if err := db.Create(invite).Error; err != nil {
		if isUniqueConstraintError(err) {
			metrics.InvitesSent.WithLabelValues("conflict").Inc()
			return nil, s.classifyInviteConflict(db, workspaceID, inviteeID)
		}
		metrics.InvitesSent.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("membership service: create invite: %w", err)
	}

	metrics.InvitesSent.WithLabelValues("sent").Inc()
	s.sendInviteEmail(ctx, email, token)
	return invite, nil
}

// classifyInviteConflict distinguishes "already a member" from "already
// invited" after the unique index rejected the insert. A concurrent accept
// can flip the pending row between our insert and this re-read, so the
// accepted state wins when present.
func (s *MembershipService) classifyInviteConflict(db *gorm.DB, workspaceID string, inviteeID *string) error {
	if inviteeID != nil {
		accepted, err := hasAcceptedMembership(db, workspaceID, *inviteeID)
		if err == nil && accepted {
			return ErrAlreadyMember
		}
	}
	return ErrDuplicateInvite
}

func (s *MembershipService) sendInviteEmail(ctx context.Context, email, token string) {
	if s.mailer == nil {
		return
	}

	link := token
	if s.baseURL != "" {
		link = fmt.Sprintf("%s/invites/%s", s.baseURL, token)
	}

	msg := mailpkg.Message{
		To:      []string{email},
		Subject: "You've been invited to a Tally workspace",
		Body: fmt.Sprintf("Hello,\n\nYou have been invited to join a workspace on Tally. "+
			"Open the link below to accept:\n%s\n\nIf you did not expect this email, you can ignore it.\n", link),
	}

	// Delivery is best effort. The invitation row is already committed and
	// the owner can re-share the link out of band.
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mailpkg.ErrSMTPDisabled) {
		logger.Warn("invite email delivery failed",
			zap.String("email", email),
			zap.Error(err))
	}
}

// GetInviteByToken returns the pending invitation for a token, with the
// workspace preloaded so acceptance screens can show where it leads.
func (s *MembershipService) GetInviteByToken(ctx context.Context, token string) (*models.WorkspaceMember, error) {
	db := s.db.WithContext(ensureContext(ctx))

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInviteNotFound
	}

	var invite models.WorkspaceMember
	err := db.Preload("Workspace").
		First(&invite, "invite_token = ? AND status = ?", token, models.StatusPending).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("membership service: find invite: %w", err)
	}
	return &invite, nil
}

// AcceptInvite redeems an invitation token on behalf of the acting user.
// Accepting is idempotent for users who already joined: the pending row is
// consumed and the existing membership returned.
func (s *MembershipService) AcceptInvite(ctx context.Context, token, actorID string) (*models.WorkspaceMember, error) {
	ctx = ensureContext(ctx)
	db := s.db.WithContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInviteNotFound
	}

	var actor models.User
	if err := db.First(&actor, "id = ?", actorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("membership service: load actor: %w", err)
	}

	var membership *models.WorkspaceMember
	// A failed statement aborts the surrounding transaction on postgres, so a
	// raced accept rolls back here and is settled in a fresh transaction below.
	errAcceptRaced := errors.New("accept raced")
	var racedWorkspaceID string
	err := db.Transaction(func(tx *gorm.DB) error {
		var invite models.WorkspaceMember
		err := lockForUpdate(tx).
			First(&invite, "invite_token = ? AND status = ?", token, models.StatusPending).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInviteNotFound
			}
			return fmt.Errorf("find invite: %w", err)
		}

		if !inviteAddressedTo(&invite, &actor) {
			return ErrNotIntendedRecipient
		}

		accepted, err := s.acceptedMembership(tx, invite.WorkspaceID, actor.ID)
		if err != nil {
			return err
		}
		if accepted != nil {
			// Already joined through another invite. Consume this one.
			if err := tx.Delete(&models.WorkspaceMember{}, "id = ?", invite.ID).Error; err != nil {
				return fmt.Errorf("consume invite: %w", err)
			}
			membership = accepted
			return nil
		}

		joined := s.now().UTC()
		updates := map[string]any{
			"user_id":      actor.ID,
			"status":       models.StatusAccepted,
			"joined_at":    joined,
			"invite_token": nil,
		}
		if err := tx.Model(&models.WorkspaceMember{}).
			Where("id = ?", invite.ID).
			Updates(updates).Error; err != nil {
			if isUniqueConstraintError(err) {
				racedWorkspaceID = invite.WorkspaceID
				return errAcceptRaced
			}
			return fmt.Errorf("accept invite: %w", err)
		}

		invite.UserID = &actor.ID
		invite.Status = models.StatusAccepted
		invite.JoinedAt = &joined
		invite.InviteToken = nil
		membership = &invite

		// Other pending invites for the same person are now moot.
		return tx.
			Where("workspace_id = ? AND status = ? AND id <> ?", invite.WorkspaceID, models.StatusPending, invite.ID).
			Where("user_id = ? OR (user_id IS NULL AND invite_email = ?)", actor.ID, actor.Email).
			Delete(&models.WorkspaceMember{}).Error
	})
	if errors.Is(err, errAcceptRaced) {
		// Another accept for the same user won. Consume this invite and
		// return the membership that landed.
		err = db.Transaction(func(tx *gorm.DB) error {
			if delErr := tx.
				Where("invite_token = ? AND status = ?", token, models.StatusPending).
				Delete(&models.WorkspaceMember{}).Error; delErr != nil {
				return fmt.Errorf("consume invite: %w", delErr)
			}
			winner, lookupErr := s.acceptedMembership(tx, racedWorkspaceID, actor.ID)
			if lookupErr != nil {
				return lookupErr
			}
			if winner == nil {
				return ErrInviteNotFound
			}
			membership = winner
			return nil
		})
	}
	if err != nil {
		return nil, err
	}

	metrics.InvitesAccepted.Inc()
	return membership, nil
}

func inviteAddressedTo(invite *models.WorkspaceMember, actor *models.User) bool {
	if invite.UserID != nil && *invite.UserID == actor.ID {
		return true
	}
	return invite.InviteEmail != nil && strings.EqualFold(*invite.InviteEmail, actor.Email)
}

func (s *MembershipService) acceptedMembership(tx *gorm.DB, workspaceID, userID string) (*models.WorkspaceMember, error) {
	var member models.WorkspaceMember
	err := tx.First(&member,
		"workspace_id = ? AND user_id = ? AND status = ?", workspaceID, userID, models.StatusAccepted).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find membership: %w", err)
	}
	return &member, nil
}

// RemoveMember deletes a user's membership and any pending invitations
// addressed to them. Owner only; the owner cannot remove themselves.
func (s *MembershipService) RemoveMember(ctx context.Context, workspaceID, actorID, memberUserID string) error {
	ctx = ensureContext(ctx)
	db := s.db.WithContext(ctx)

	if err := requireOwner(db, workspaceID, actorID); err != nil {
		return err
	}
	if memberUserID == actorID {
		return ErrCannotRemoveOwner
	}

	return db.Transaction(func(tx *gorm.DB) error {
		query := tx.Where("workspace_id = ?", workspaceID)

		var target models.User
		err := tx.First(&target, "id = ?", memberUserID).Error
		switch {
		case err == nil:
			query = query.Where("user_id = ? OR (user_id IS NULL AND invite_email = ?)", memberUserID, target.Email)
		case errors.Is(err, gorm.ErrRecordNotFound):
			query = query.Where("user_id = ?", memberUserID)
		default:
			return fmt.Errorf("membership service: load target: %w", err)
		}

		result := query.Delete(&models.WorkspaceMember{})
		if result.Error != nil {
			return fmt.Errorf("membership service: remove member: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrMemberNotFound
		}
		return nil
	})
}

// CancelInvite withdraws a pending invitation, identified by either its row
// id or its token. Owner only. Invitations that were already accepted cannot
// be cancelled; losing that race to an accept is reported as not found, not
// as a server error.
func (s *MembershipService) CancelInvite(ctx context.Context, workspaceID, actorID, inviteRef string) error {
	ctx = ensureContext(ctx)
	db := s.db.WithContext(ctx)

	if err := requireOwner(db, workspaceID, actorID); err != nil {
		return err
	}

	result := db.
		Where("workspace_id = ? AND status = ? AND (id = ? OR invite_token = ?)",
			workspaceID, models.StatusPending, inviteRef, inviteRef).
		Delete(&models.WorkspaceMember{})
	if result.Error != nil {
		return fmt.Errorf("membership service: cancel invite: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInviteNotFound
	}
	return nil
}

// ListMembers returns every membership row in the workspace, accepted rows
// first, then pending invites to registered users, then pending invites to
// unregistered emails, oldest first within each group. Member only.
func (s *MembershipService) ListMembers(ctx context.Context, workspaceID, actorID string) ([]models.WorkspaceMember, error) {
	db := s.db.WithContext(ensureContext(ctx))

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}

	var members []models.WorkspaceMember
	err := db.Preload("User").
		Where("workspace_id = ?", workspaceID).
		Order("status ASC").
		Order("user_id IS NULL").
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("membership service: list members: %w", err)
	}
	return members, nil
}
