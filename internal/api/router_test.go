package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/app"
	iauth "github.com/tallyhq/tally/internal/auth"
	"github.com/tallyhq/tally/internal/database"
	"github.com/tallyhq/tally/pkg/mail"
)

type capturingMailer struct {
	sent []mail.Message
}

func (m *capturingMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *capturingMailer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenAndMigrate(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret", Issuer: "tally"})
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Invites.BaseURL = "http://tally.test"

	mailer := &capturingMailer{}
	router, err := NewRouter(db, jwt, mailer, cfg)
	require.NoError(t, err)
	return router, mailer
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) (int, apiEnvelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var envelope apiEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), "body: %s", w.Body.String())
	return w.Code, envelope
}

func registerViaAPI(t *testing.T, r *gin.Engine, email, name string) (token, userID, workspaceID string) {
	t.Helper()

	code, envelope := doJSON(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":    email,
		"password": "correct horse",
		"name":     name,
	})
	require.Equal(t, http.StatusCreated, code)

	var payload struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
		Workspace struct {
			ID string `json:"id"`
		} `json:"workspace"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	require.NotEmpty(t, payload.Token)
	return payload.Token, payload.User.ID, payload.Workspace.ID
}

var inviteLinkPattern = regexp.MustCompile(`/invites/([A-Za-z0-9_\-]+)`)

func TestRouterEndToEndFlow(t *testing.T) {
	r, mailer := newTestRouter(t)

	ownerToken, _, workspaceID := registerViaAPI(t, r, "owner@example.com", "Olive Owner")
	memberToken, memberID, _ := registerViaAPI(t, r, "milo@example.com", "Milo")

	// Owner invites the second account.
	code, _ := doJSON(t, r, http.MethodPost, "/api/workspaces/"+workspaceID+"/invites", ownerToken,
		gin.H{"email": "milo@example.com"})
	require.Equal(t, http.StatusCreated, code)

	require.NotEmpty(t, mailer.sent)
	match := inviteLinkPattern.FindStringSubmatch(mailer.sent[len(mailer.sent)-1].Body)
	require.Len(t, match, 2)
	inviteToken := match[1]

	// The invitee can inspect and accept the invitation.
	code, _ = doJSON(t, r, http.MethodGet, "/api/invites/"+inviteToken, memberToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, envelope := doJSON(t, r, http.MethodPost, "/api/invites/"+inviteToken+"/accept", memberToken, nil)
	require.Equal(t, http.StatusOK, code, "error: %+v", envelope.Error)

	var membership struct {
		UserID *string `json:"user_id"`
		Status string  `json:"status"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &membership))
	require.NotNil(t, membership.UserID)
	require.Equal(t, memberID, *membership.UserID)
	require.Equal(t, "accepted", membership.Status)

	// Owner stocks the catalogue.
	code, envelope = doJSON(t, r, http.MethodPost, "/api/workspaces/"+workspaceID+"/items", ownerToken,
		gin.H{"name": "Enamel Mug", "price": 9.5, "stock_level": 20})
	require.Equal(t, http.StatusCreated, code)

	var item struct {
		ID         string `json:"id"`
		StockLevel int    `json:"stock_level"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &item))

	// The new member rings up a sale.
	code, envelope = doJSON(t, r, http.MethodPost, "/api/workspaces/"+workspaceID+"/sales", memberToken,
		gin.H{"lines": []gin.H{{"item_id": item.ID, "quantity": 2}}})
	require.Equal(t, http.StatusCreated, code, "error: %+v", envelope.Error)

	var sale struct {
		Total float64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &sale))
	require.InDelta(t, 19.0, sale.Total, 1e-9)

	// Stock reflects the sale.
	code, envelope = doJSON(t, r, http.MethodGet,
		fmt.Sprintf("/api/workspaces/%s/items/%s", workspaceID, item.ID), ownerToken, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(envelope.Data, &item))
	require.Equal(t, 18, item.StockLevel)

	code, envelope = doJSON(t, r, http.MethodGet, "/api/workspaces/"+workspaceID+"/sales/summary", ownerToken, nil)
	require.Equal(t, http.StatusOK, code)

	var summary struct {
		SaleCount    int64   `json:"sale_count"`
		GrossRevenue float64 `json:"gross_revenue"`
		UnitsSold    int64   `json:"units_sold"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &summary))
	require.EqualValues(t, 1, summary.SaleCount)
	require.InDelta(t, 19.0, summary.GrossRevenue, 1e-9)
	require.EqualValues(t, 2, summary.UnitsSold)
}

func TestRouterAuthorisationBoundaries(t *testing.T) {
	r, _ := newTestRouter(t)

	ownerToken, _, workspaceID := registerViaAPI(t, r, "owner@example.com", "Olive Owner")
	outsiderToken, _, _ := registerViaAPI(t, r, "oscar@example.com", "Oscar")

	// No token at all.
	code, _ := doJSON(t, r, http.MethodGet, "/api/workspaces", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	// An authenticated outsider is still not a member.
	code, envelope := doJSON(t, r, http.MethodGet, "/api/workspaces/"+workspaceID, outsiderToken, nil)
	require.Equal(t, http.StatusForbidden, code)
	require.False(t, envelope.Success)

	// Only the owner can invite.
	code, _ = doJSON(t, r, http.MethodPost, "/api/workspaces/"+workspaceID+"/invites", outsiderToken,
		gin.H{"email": "third@example.com"})
	require.Equal(t, http.StatusForbidden, code)

	// Invalid payloads surface as 400s.
	code, _ = doJSON(t, r, http.MethodPost, "/api/workspaces/"+workspaceID+"/invites", ownerToken,
		gin.H{"email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestRouterHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
