package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tallyhq/tally/internal/middleware"
	apperrors "github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// actorID pulls the authenticated user id, writing a 401 when absent.
func actorID(c *gin.Context) (string, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return "", false
	}
	return id, true
}
