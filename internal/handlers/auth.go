package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/tallyhq/tally/internal/auth"
	"github.com/tallyhq/tally/internal/services"
	"github.com/tallyhq/tally/pkg/response"
)

// AuthHandler exposes registration, login and password reset endpoints.
type AuthHandler struct {
	users  *services.UserService
	resets *services.PasswordResetService
	jwt    *iauth.JWTService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *services.UserService, resets *services.PasswordResetService, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, resets: resets, jwt: jwt}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required,max=120"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type resetRequestPayload struct {
	Email string `json:"email" validate:"required,email"`
}

type resetConfirmPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// Register creates an account with its starter workspace and returns a token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, workspace, err := h.users.Register(requestContext(c), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"token":     token,
		"user":      user,
		"workspace": workspace,
	})
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// Profile returns the authenticated user.
func (h *AuthHandler) Profile(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	user, err := h.users.FindByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// RequestPasswordReset issues a reset code. Always answers 202 so the
// endpoint cannot be used to probe registered emails.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req resetRequestPayload
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resets.RequestReset(requestContext(c), req.Email); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"status": "reset code sent if the account exists"})
}

// ConfirmPasswordReset redeems a reset code and sets the new password.
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req resetConfirmPayload
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resets.ConfirmReset(requestContext(c), req.Email, req.Code, req.Password); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "password updated"})
}
