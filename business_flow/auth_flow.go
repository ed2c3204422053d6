package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/app/services"
	"github.com/amirphl/lead-lifecycle/models"
	"github.com/amirphl/lead-lifecycle/repository"
	"github.com/amirphl/lead-lifecycle/utils"
)

const bearerTokenType = "Bearer"

// AuthFlow rotates and revokes actor sessions
type AuthFlow interface {
	RefreshSession(ctx context.Context, req *dto.RefreshTokenRequest, metadata *ClientMetadata) (*dto.TokenPairResponse, error)
	Logout(ctx context.Context, accessToken string, req *dto.LogoutRequest, actor Actor, metadata *ClientMetadata) error
}

// AuthFlowImpl implements AuthFlow
type AuthFlowImpl struct {
	tokens    services.TokenService
	auditRepo repository.AuditLogRepository
	logger    *zap.Logger
}

func NewAuthFlow(tokens services.TokenService, auditRepo repository.AuditLogRepository, logger *zap.Logger) AuthFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthFlowImpl{
		tokens:    tokens,
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// RefreshSession revokes the presented refresh token and issues a new pair for the same actor
func (f *AuthFlowImpl) RefreshSession(ctx context.Context, req *dto.RefreshTokenRequest, metadata *ClientMetadata) (*dto.TokenPairResponse, error) {
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		return nil, newValidationError("refresh_token is required", ErrInvalidRefreshToken)
	}

	claims, err := f.tokens.ValidateToken(raw)
	if err != nil {
		return nil, newAuthError("Invalid or expired refresh token", fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err))
	}

	access, refresh, err := f.tokens.RefreshToken(raw)
	if err != nil {
		return nil, newAuthError("Invalid or expired refresh token", fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err))
	}

	f.audit(ctx, claims.ActorID, models.AuditActionTokenRefreshed, "session refreshed", metadata, map[string]any{
		"revoked_jti": claims.TokenID,
	})

	return &dto.TokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    bearerTokenType,
	}, nil
}

// Logout revokes the caller's access token and, when given, a refresh token of the same actor
func (f *AuthFlowImpl) Logout(ctx context.Context, accessToken string, req *dto.LogoutRequest, actor Actor, metadata *ClientMetadata) error {
	var refresh *services.TokenClaims
	if req != nil && req.RefreshToken != nil && strings.TrimSpace(*req.RefreshToken) != "" {
		claims, err := f.tokens.ValidateToken(strings.TrimSpace(*req.RefreshToken))
		if err != nil {
			return newAuthError("Invalid or expired refresh token", fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err))
		}
		if claims.ActorID != actor.ID {
			return newAuthError("Refresh token belongs to another actor", ErrTokenActorMismatch)
		}
		refresh = claims
	}

	if err := f.tokens.RevokeToken(accessToken); err != nil {
		return newAuthError("Invalid access token", fmt.Errorf("%w: %w", ErrInvalidAccessToken, err))
	}

	revoked := 1
	if refresh != nil {
		if err := f.tokens.RevokeToken(strings.TrimSpace(*req.RefreshToken)); err != nil {
			return newAuthError("Invalid or expired refresh token", fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err))
		}
		revoked++
	}

	f.audit(ctx, actor.ID, models.AuditActionTokenRevoked, "session revoked", metadata, map[string]any{
		"revoked_tokens": revoked,
	})
	return nil
}

func (f *AuthFlowImpl) audit(ctx context.Context, actorID, action, description string, metadata *ClientMetadata, extra map[string]any) {
	raw, _ := json.Marshal(extra)

	entry := &models.AuditLog{
		ActorID:     utils.ToPtr(actorID),
		Action:      action,
		Description: &description,
		Metadata:    raw,
		Success:     utils.ToPtr(true),
	}
	if metadata != nil {
		entry.IPAddress = &metadata.IPAddress
		entry.UserAgent = &metadata.UserAgent
		if metadata.RequestID != "" {
			entry.RequestID = &metadata.RequestID
		}
	}

	if err := f.auditRepo.Save(ctx, entry); err != nil {
		f.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
