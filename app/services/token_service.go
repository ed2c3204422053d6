// Package services provides external service integrations and technical concerns like tokens, events and caches
package services

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/amirphl/lead-lifecycle/utils"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token has been revoked")
)

// Actor roles carried in access tokens
const (
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenService issues and verifies actor JWTs for the lead API
type TokenService interface {
	GenerateTokens(actorID, role string) (accessToken, refreshToken string, err error)
	ValidateToken(token string) (*TokenClaims, error)
	RefreshToken(refreshToken string) (newAccessToken, newRefreshToken string, err error)
	RevokeToken(token string) error
	IsTokenRevoked(tokenID string) bool
}

// TokenClaims is the verified view of a token handed to middleware
type TokenClaims struct {
	ActorID   string    `json:"actor_id"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenType string    `json:"token_type"`
	TokenID   string    `json:"jti"`
}

// IsAdmin reports whether the token belongs to an admin actor
func (c *TokenClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// actorClaims is the wire form; the actor travels in sub and the token id in jti
type actorClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// signer holds the key material for one signing method
type signer struct {
	method jwt.SigningMethod
	sign   any
	verify any
}

// TokenServiceImpl implements TokenService
type TokenServiceImpl struct {
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	issuer          string
	audience        string
	signer          signer
	parser          *jwt.Parser

	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> expiry
}

// NewTokenService creates a token service signing with RS256 when useRSAKeys is set, HS256 otherwise
func NewTokenService(accessTokenTTL, refreshTokenTTL time.Duration, issuer, audience string, useRSAKeys bool, privateKeyPEM, publicKeyPEM, secretKey string) (TokenService, error) {
	var s signer
	if useRSAKeys {
		priv, pub, err := parseRSAKeys(privateKeyPEM, publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA keys: %w", err)
		}
		s = signer{method: jwt.SigningMethodRS256, sign: priv, verify: pub}
	} else {
		if secretKey == "" {
			return nil, errors.New("secret key is required when not using RSA keys")
		}
		s = signer{method: jwt.SigningMethodHS256, sign: []byte(secretKey), verify: []byte(secretKey)}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &TokenServiceImpl{
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		issuer:          issuer,
		audience:        audience,
		signer:          s,
		parser:          jwt.NewParser(opts...),
		revoked:         make(map[string]time.Time),
	}, nil
}

func parseRSAKeys(privateKeyPEM, publicKeyPEM string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if privateKeyPEM == "" || publicKeyPEM == "" {
		return nil, nil, errors.New("both private and public keys are required")
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, nil, fmt.Errorf("private key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, nil, fmt.Errorf("public key: %w", err)
	}
	return priv, pub, nil
}

// GenerateTokens issues an access and a refresh token for the actor. An empty role means agent.
func (s *TokenServiceImpl) GenerateTokens(actorID, role string) (accessToken, refreshToken string, err error) {
	if actorID == "" {
		return "", "", errors.New("actor ID is required")
	}
	if role == "" {
		role = RoleAgent
	}

	if accessToken, err = s.issue(actorID, role, tokenTypeAccess, s.accessTokenTTL); err != nil {
		return "", "", err
	}
	if refreshToken, err = s.issue(actorID, role, tokenTypeRefresh, s.refreshTokenTTL); err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (s *TokenServiceImpl) issue(actorID, role, tokenType string, ttl time.Duration) (string, error) {
	now := utils.UTCNow()
	claims := actorClaims{
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   actorID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(s.signer.method, claims).SignedString(s.signer.sign)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateToken verifies signature, algorithm, issuer, audience and expiry, then the revocation list
func (s *TokenServiceImpl) ValidateToken(token string) (*TokenClaims, error) {
	var claims actorClaims
	_, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.signer.verify, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" || claims.ID == "" || claims.IssuedAt == nil {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != tokenTypeAccess && claims.TokenType != tokenTypeRefresh {
		return nil, ErrTokenInvalid
	}
	if s.IsTokenRevoked(claims.ID) {
		return nil, ErrTokenRevoked
	}

	return &TokenClaims{
		ActorID:   claims.Subject,
		Role:      claims.Role,
		TokenType: claims.TokenType,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RefreshToken rotates a refresh token; the presented token is revoked
func (s *TokenServiceImpl) RefreshToken(refreshToken string) (newAccessToken, newRefreshToken string, err error) {
	claims, err := s.ValidateToken(refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}
	if claims.TokenType != tokenTypeRefresh {
		return "", "", errors.New("token is not a refresh token")
	}

	s.revoke(claims.TokenID, claims.ExpiresAt)
	return s.GenerateTokens(claims.ActorID, claims.Role)
}

// RevokeToken keeps the token's id on the in-memory revocation list until it expires
func (s *TokenServiceImpl) RevokeToken(token string) error {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	s.revoke(claims.TokenID, claims.ExpiresAt)
	return nil
}

func (s *TokenServiceImpl) revoke(tokenID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := utils.UTCNow()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[tokenID] = expiresAt
}

// IsTokenRevoked checks if a token ID has been revoked
func (s *TokenServiceImpl) IsTokenRevoked(tokenID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.revoked[tokenID]
	return ok
}
