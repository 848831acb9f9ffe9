package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
)

// Role is the caller class carried in the token.
type Role string

const (
	RoleParty   Role = "PARTY"
	RoleAdmin   Role = "ADMIN"
	RoleService Role = "SERVICE"
)

// ParseRole normalizes a role claim; unknown or empty values fall back to PARTY.
func ParseRole(raw string) Role {
	switch r := Role(strings.ToUpper(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleService:
		return r
	}
	return RoleParty
}

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the authenticated caller.
type Identity struct {
	PartyID string
	Role    Role
}

// Claims is the token payload: sub is the party id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// KeyResolver returns the HMAC key for a token's kid header. An empty keyID asks for the
// default key.
type KeyResolver interface {
	Key(ctx context.Context, keyID string) ([]byte, error)
}

// Service verifies bearer tokens issued by the identity provider.
type Service struct {
	keys   KeyResolver
	logger zerolog.Logger
}

// NewService creates an auth service for HMAC tokens. A nil resolver disables bearer tokens.
func NewService(keys KeyResolver, logger zerolog.Logger) *Service {
	return &Service{
		keys:   keys,
		logger: logger.With().Str("service", "auth").Logger(),
	}
}

// Authenticate validates token and returns the caller identity.
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if s.keys == nil {
		return nil, fmt.Errorf("%w: token verification disabled", ErrInvalidToken)
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		return s.keys.Key(ctx, kid)
	})
	if err != nil {
		s.logger.Debug().Err(err).Msg("token rejected")
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	partyID := strings.TrimSpace(claims.Subject)
	if partyID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &Identity{PartyID: partyID, Role: ParseRole(claims.Role)}, nil
}

// IssueToken signs a token for partyID with the default key. Used by tooling and tests;
// production tokens come from the identity provider.
func (s *Service) IssueToken(partyID string, role Role, ttl time.Duration) (string, error) {
	if s.keys == nil {
		return "", errors.New("no signing key configured")
	}
	key, err := s.keys.Key(context.Background(), "")
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   partyID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
