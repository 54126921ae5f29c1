package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tallyhq/tally/internal/services"
	"github.com/tallyhq/tally/pkg/response"
)

// WorkspaceHandler exposes workspace lifecycle and membership endpoints.
type WorkspaceHandler struct {
	workspaces  *services.WorkspaceService
	memberships *services.MembershipService
}

// NewWorkspaceHandler constructs a WorkspaceHandler.
func NewWorkspaceHandler(workspaces *services.WorkspaceService, memberships *services.MembershipService) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces, memberships: memberships}
}

type createWorkspaceRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type renameWorkspaceRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// List returns the workspaces the actor belongs to.
func (h *WorkspaceHandler) List(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	workspaces, err := h.workspaces.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, workspaces)
}

// Create provisions a new workspace owned by the actor.
func (h *WorkspaceHandler) Create(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	var req createWorkspaceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	workspace, err := h.workspaces.Create(requestContext(c), userID, req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, workspace)
}

// Get returns one workspace.
func (h *WorkspaceHandler) Get(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	workspace, err := h.workspaces.Get(requestContext(c), c.Param("id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, workspace)
}

// Rename updates the workspace name. Owner only.
func (h *WorkspaceHandler) Rename(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	var req renameWorkspaceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	workspace, err := h.workspaces.Rename(requestContext(c), c.Param("id"), userID, req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, workspace)
}

// ListMembers returns accepted members and pending invitations.
func (h *WorkspaceHandler) ListMembers(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	members, err := h.memberships.ListMembers(requestContext(c), c.Param("id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, members)
}

// Invite creates a pending invitation. Owner only.
func (h *WorkspaceHandler) Invite(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	var req inviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invite, err := h.memberships.Invite(requestContext(c), c.Param("id"), userID, req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, invite)
}

// CancelInvite withdraws a pending invitation. Owner only.
func (h *WorkspaceHandler) CancelInvite(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	if err := h.memberships.CancelInvite(requestContext(c), c.Param("id"), userID, c.Param("inviteID")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "invitation cancelled"})
}

// RemoveMember deletes a membership. Owner only.
func (h *WorkspaceHandler) RemoveMember(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	if err := h.memberships.RemoveMember(requestContext(c), c.Param("id"), userID, c.Param("userID")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "member removed"})
}

// GetInvite shows the invitation behind a token, for acceptance screens.
func (h *WorkspaceHandler) GetInvite(c *gin.Context) {
	invite, err := h.memberships.GetInviteByToken(requestContext(c), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, invite)
}

// AcceptInvite redeems an invitation token for the actor.
func (h *WorkspaceHandler) AcceptInvite(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	member, err := h.memberships.AcceptInvite(requestContext(c), c.Param("token"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}
