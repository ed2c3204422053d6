package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/app/middleware"
	businessflow "github.com/amirphl/lead-lifecycle/business_flow"
)

type stubAuthFlow struct {
	refreshReq  *dto.RefreshTokenRequest
	logoutToken string
	logoutReq   *dto.LogoutRequest
	logoutActor businessflow.Actor
	err         error
}

func (s *stubAuthFlow) RefreshSession(_ context.Context, req *dto.RefreshTokenRequest, _ *businessflow.ClientMetadata) (*dto.TokenPairResponse, error) {
	s.refreshReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.TokenPairResponse{AccessToken: "new-access", RefreshToken: "new-refresh", TokenType: "Bearer"}, nil
}

func (s *stubAuthFlow) Logout(_ context.Context, accessToken string, req *dto.LogoutRequest, actor businessflow.Actor, _ *businessflow.ClientMetadata) error {
	s.logoutToken = accessToken
	s.logoutReq = req
	s.logoutActor = actor
	return s.err
}

func newAuthApp(flow businessflow.AuthFlow, actorID, token string) *fiber.App {
	h := NewAuthHandler(flow)
	app := fiber.New()
	app.Post("/auth/refresh", h.Refresh)
	app.Post("/auth/logout", func(c fiber.Ctx) error {
		if actorID != "" {
			c.Locals(middleware.LocalActorID, actorID)
			c.Locals(middleware.LocalActorRole, "agent")
			c.Locals(middleware.LocalAccessToken, token)
		}
		return c.Next()
	}, h.Logout)
	return app
}

func TestRefreshHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		flowErr        error
		expectedStatus int
		expectedCode   string
	}{
		{name: "rotated", body: `{"refresh_token":"r-1"}`, expectedStatus: http.StatusOK},
		{name: "missing token", body: `{}`, expectedStatus: http.StatusBadRequest, expectedCode: businessflow.CodeValidationError},
		{name: "malformed body", body: `{`, expectedStatus: http.StatusBadRequest, expectedCode: businessflow.CodeValidationError},
		{
			name:           "revoked token",
			body:           `{"refresh_token":"r-1"}`,
			flowErr:        businessflow.NewBusinessError(businessflow.CodeAuthError, "Invalid or expired refresh token", businessflow.ErrInvalidRefreshToken),
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   businessflow.CodeAuthError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &stubAuthFlow{err: tt.flowErr}
			status, body := doRequest(t, newAuthApp(flow, "", ""), http.MethodPost, "/auth/refresh", tt.body, nil)
			assert.Equal(t, tt.expectedStatus, status)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(body))
				return
			}
			data := body["data"].(map[string]any)
			assert.Equal(t, "new-access", data["access_token"])
			assert.Equal(t, "r-1", flow.refreshReq.RefreshToken)
		})
	}
}

func TestLogoutHandler(t *testing.T) {
	flow := &stubAuthFlow{}

	status, _ := doRequest(t, newAuthApp(flow, "agent-1", "a-1"), http.MethodPost, "/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "a-1", flow.logoutToken)
	assert.Equal(t, "agent-1", flow.logoutActor.ID)
	assert.Nil(t, flow.logoutReq.RefreshToken)

	status, _ = doRequest(t, newAuthApp(flow, "agent-1", "a-1"), http.MethodPost, "/auth/logout", `{"refresh_token":"r-1"}`, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, flow.logoutReq.RefreshToken)
	assert.Equal(t, "r-1", *flow.logoutReq.RefreshToken)

	status, body := doRequest(t, newAuthApp(flow, "", ""), http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "MISSING_ACTOR", errorCode(body))

	flow.err = businessflow.NewBusinessError(businessflow.CodeAuthError, "Refresh token belongs to another actor", businessflow.ErrTokenActorMismatch)
	status, body = doRequest(t, newAuthApp(flow, "agent-1", "a-1"), http.MethodPost, "/auth/logout", `{"refresh_token":"r-2"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, businessflow.CodeAuthError, errorCode(body))
}
