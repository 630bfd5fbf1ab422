package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/payplan-sync/internal/errors"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
)

// TokenService issues portal link tokens. Plaintext tokens are returned to
// the caller exactly once at issuance; storage only ever sees the SHA-256
// hash.
type TokenService struct {
	linkRepo PortalLinkRepository
	baseURL  string
	ttl      time.Duration
}

// NewTokenService creates a new token service
func NewTokenService(linkRepo PortalLinkRepository, baseURL string, ttl time.Duration) *TokenService {
	return &TokenService{
		linkRepo: linkRepo,
		baseURL:  strings.TrimRight(baseURL, "/"),
		ttl:      ttl,
	}
}

// GenerateToken returns a new 256-bit URL-safe token and its storage hash
func GenerateToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken returns the hex-encoded SHA-256 digest stored for a token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IssueLink mints a fresh portal link for a work unit, invalidating any
// previously valid link, and returns the link with its plaintext token.
func (s *TokenService) IssueLink(ctx context.Context, ownerID, clientID, workUnitID string) (*models.PortalLink, string, error) {
	token, hash, err := GenerateToken()
	if err != nil {
		return nil, "", errors.NewInternalError("failed to generate portal token", err)
	}

	now := time.Now()
	expiresAt := now.Add(s.ttl)

	link := &models.PortalLink{
		OwnerID:    ownerID,
		ClientID:   clientID,
		WorkUnitID: workUnitID,
		Scope:      types.PortalScopePlan,
		TokenHash:  hash,
		IssuedAt:   now,
		ExpiresAt:  &expiresAt,
	}

	if err := s.linkRepo.Issue(ctx, link); err != nil {
		return nil, "", errors.NewDatabaseError("issue portal link", err)
	}

	return link, token, nil
}

// PortalURL builds the client-facing URL for a plaintext token
func (s *TokenService) PortalURL(token string) string {
	return fmt.Sprintf("%s/portal/%s", s.baseURL, token)
}
