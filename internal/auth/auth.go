// Package auth validates console access tokens and tracks their revocation.
//
// The console signs users in elsewhere and hands the browser an HMAC-signed
// JWT. A tab presents that token when it opens its websocket; logging out,
// whether by the user or by forced idle expiry, revokes the token id until
// the token would have expired anyway.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SoarinFerret/IdleWarden/internal/clock"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
	ErrRevoked      = errors.New("token revoked")
)

// Identity is the authenticated principal behind a token.
type Identity struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service combines token validation with the revocation store.
type Service struct {
	validator *Validator
	store     Store
	clock     clock.Clock
	adminRole string
	log       logrus.FieldLogger
}

func NewService(v *Validator, store Store, adminRole string, clk clock.Clock, logger logrus.FieldLogger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{validator: v, store: store, clock: clk, adminRole: adminRole, log: logger}
}

// Authenticate validates a raw token and rejects revoked ones.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	id, err := s.validator.Validate(token)
	if err != nil {
		return Identity{}, err
	}
	if err := s.checkRevoked(ctx, id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Logout revokes the identity's token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, id Identity) error {
	ttl := id.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := s.store.Revoke(ctx, id.TokenID, ttl); err != nil {
		return fmt.Errorf("revoke token for %s: %w", id.Username, err)
	}
	s.log.WithFields(logrus.Fields{
		"user":     id.Username,
		"token_id": id.TokenID,
	}).Info("Token revoked")
	return nil
}

// Check reports whether a previously authenticated identity is still valid at now.
func (s *Service) Check(ctx context.Context, id Identity, now time.Time) error {
	if !now.Before(id.ExpiresAt) {
		return ErrExpired
	}
	return s.checkRevoked(ctx, id)
}

// IsAdmin reports whether the identity may use the administrative API.
func (s *Service) IsAdmin(id Identity) bool {
	return s.adminRole != "" && id.Role == s.adminRole
}

// Ping checks the revocation store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) checkRevoked(ctx context.Context, id Identity) error {
	revoked, err := s.store.IsRevoked(ctx, id.TokenID)
	if err != nil {
		return fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return ErrRevoked
	}
	return nil
}
