package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SoarinFerret/IdleWarden/internal/auth"
	"github.com/SoarinFerret/IdleWarden/internal/monitor"
)

// ReasonAdmin is the expiry reason for administrative terminations.
const ReasonAdmin = "terminated by admin"

// SessionInfo describes a live tab for the admin API and D-Bus.
type SessionInfo struct {
	ID          string           `json:"id"`
	User        string           `json:"user"`
	UserID      string           `json:"user_id"`
	Active      bool             `json:"active"`
	ConnectedAt time.Time        `json:"connected_at"`
	Monitor     monitor.Snapshot `json:"monitor"`
}

// Session binds one tab's connection, identity and monitor together. It is
// the monitor's Auth collaborator.
type Session struct {
	id          string
	identity    auth.Identity
	connectedAt time.Time
	loginRoute  string
	conn        *Conn
	auth        *auth.Service
	monitor     *monitor.Monitor
	log         logrus.FieldLogger

	// mu serializes presence changes with the Attach calls they imply.
	mu     sync.Mutex
	active bool
	route  string
}

func (s *Session) ID() string { return s.id }

func (s *Session) Identity() auth.Identity { return s.identity }

// Active reports whether the tab still holds a valid sign-in.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:          s.id,
		User:        s.identity.Username,
		UserID:      s.identity.UserID,
		Active:      s.Active(),
		ConnectedAt: s.connectedAt,
		Monitor:     s.monitor.Snapshot(),
	}
}

// Logout revokes the tab's token and tells the tab to drop its credentials.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	err := s.auth.Logout(ctx, s.identity)
	if sendErr := s.conn.send(ServerMessage{Type: MsgLogout}); sendErr != nil {
		s.log.WithError(sendErr).Debug("Failed to send logout to tab")
	}
	return err
}

// navigate records the tab's current route and re-evaluates its monitor.
func (s *Session) navigate(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = route
	s.monitor.Attach(s.active, route)
}

// userLogout handles the user pressing logout in the console.
func (s *Session) userLogout(ctx context.Context) {
	s.mu.Lock()
	s.active = false
	s.monitor.Logout()
	s.mu.Unlock()

	if err := s.auth.Logout(ctx, s.identity); err != nil {
		s.log.WithError(err).Error("Failed to revoke token on user logout")
	}
}

// EndPresence handles a sign-in that ended elsewhere (expired or revoked
// token): the monitor disarms and the tab is sent to the login route. It
// reports false if the session was already inactive.
func (s *Session) EndPresence(ctx context.Context, reason string) bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	s.active = false
	s.monitor.Attach(false, s.route)
	s.mu.Unlock()

	s.log.WithField("reason", reason).Info("Sign-in ended, returning tab to login")
	if err := s.conn.send(ServerMessage{Type: MsgLogout}); err != nil {
		s.log.WithError(err).Debug("Failed to send logout to tab")
	}
	if err := s.conn.Redirect(ctx, s.loginRoute, true); err != nil {
		s.log.WithError(err).Debug("Failed to redirect tab to login")
	}
	return true
}

// Terminate ends the session administratively. An armed monitor runs its
// forced expiry; otherwise the token is revoked and presence ended directly.
func (s *Session) Terminate(ctx context.Context, reason string) error {
	if s.monitor.ForceExpire(reason) {
		return nil
	}
	if !s.Active() {
		return nil
	}
	if err := s.auth.Logout(ctx, s.identity); err != nil {
		return fmt.Errorf("terminate session %s: %w", s.id, err)
	}
	s.EndPresence(ctx, reason)
	return nil
}

// Notify shows an informational message in the tab.
func (s *Session) Notify(ctx context.Context, message string) error {
	return s.conn.Alert(ctx, message)
}

func (s *Session) close() {
	s.monitor.Close()
	if err := s.conn.Close(); err != nil {
		s.log.WithError(err).Debug("Error closing websocket")
	}
}
