package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tallyhq/tally/internal/services"
	"github.com/tallyhq/tally/pkg/response"
)

// ChatHandler exposes the workspace message board.
type ChatHandler struct {
	chat *services.ChatService
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type postMessageRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// List returns the newest messages first. ?limit= caps the result.
func (h *ChatHandler) List(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	messages, err := h.chat.ListMessages(requestContext(c), c.Param("id"), userID, parseIntQuery(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, messages)
}

// Post appends a message to the board.
func (h *ChatHandler) Post(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	var req postMessageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	message, err := h.chat.PostMessage(requestContext(c), c.Param("id"), userID, req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, message)
}

// Clear wipes the board. Owner only.
func (h *ChatHandler) Clear(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	removed, err := h.chat.ClearMessages(requestContext(c), c.Param("id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}
