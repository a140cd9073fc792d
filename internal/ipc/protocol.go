// Package ipc exposes the daemon to local administrators over D-Bus.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/SoarinFerret/IdleWarden/internal/clock"
	"github.com/SoarinFerret/IdleWarden/internal/gateway"
	"github.com/SoarinFerret/IdleWarden/internal/session"
	"github.com/SoarinFerret/IdleWarden/internal/state"
)

const (
	ObjectPath    = "/io/github/soarinferret/idlewarden"
	InterfaceName = "io.github.soarinferret.idlewarden.Manager"
	ServiceName   = "io.github.soarinferret.idlewarden"
)

const callTimeout = 15 * time.Second

// UserStatus is the GetUserStatus reply.
type UserStatus struct {
	User       string                  `json:"user"`
	Live       []gateway.SessionInfo   `json:"live"`
	Sessions   []session.SessionRecord `json:"sessions"`
	Connected  int                     `json:"connected"`
	Expiries24 int                     `json:"expiries_24h"`
}

// SessionManager is the exported D-Bus object.
type SessionManager struct {
	State    *state.Manager
	Registry *gateway.Registry
	Clock    clock.Clock
	Log      logrus.FieldLogger
}

func (s *SessionManager) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *SessionManager) GetStatus() (string, *dbus.Error) {
	return fmt.Sprintf("Service is running, %d live session(s), %d user(s) with history",
		s.Registry.Len(), len(s.State.Usernames())), nil
}

// ListSessions returns the live sessions as JSON.
func (s *SessionManager) ListSessions() (string, *dbus.Error) {
	list := s.Registry.List()
	infos := make([]gateway.SessionInfo, 0, len(list))
	for _, sess := range list {
		infos = append(infos, sess.Info())
	}
	return marshal(infos)
}

// GetUserStatus returns a user's live sessions and history as JSON.
func (s *SessionManager) GetUserStatus(user string) (string, *dbus.Error) {
	status := UserStatus{User: user, Live: []gateway.SessionInfo{}}
	for _, sess := range s.Registry.ByUser(user) {
		status.Live = append(status.Live, sess.Info())
	}

	u, err := s.State.GetUser(user)
	if err != nil && len(status.Live) == 0 {
		return "", dbus.MakeFailedError(fmt.Errorf("unknown user %s", user))
	}
	status.Sessions = u.Sessions
	status.Connected = len(u.ActiveSessions())
	status.Expiries24 = u.ExpiryCount(s.now().Add(-24 * time.Hour))
	return marshal(status)
}

// ExpireSession force-expires one live session.
func (s *SessionManager) ExpireSession(sessionID string) *dbus.Error {
	sess, ok := s.Registry.Get(sessionID)
	if !ok {
		return dbus.MakeFailedError(fmt.Errorf("session %s not found", sessionID))
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := sess.Terminate(ctx, gateway.ReasonAdmin); err != nil {
		return dbus.MakeFailedError(err)
	}
	s.Log.WithField("session_id", sessionID).Info("Session expired over D-Bus")
	return nil
}

// SendNotification shows a message in every live tab of a user.
func (s *SessionManager) SendNotification(user, message string) *dbus.Error {
	sessions := s.Registry.ByUser(user)
	if len(sessions) == 0 {
		return dbus.MakeFailedError(fmt.Errorf("no live sessions for %s", user))
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	sent := 0
	for _, sess := range sessions {
		if err := sess.Notify(ctx, message); err != nil {
			s.Log.WithError(err).WithField("session_id", sess.ID()).Warn("Failed to deliver notification")
			continue
		}
		sent++
	}
	if sent == 0 {
		return dbus.MakeFailedError(fmt.Errorf("notification not delivered to %s", user))
	}
	return nil
}

func marshal(v interface{}) (string, *dbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

// Serve exports sm on the system or session bus until ctx is done.
func Serve(ctx context.Context, system bool, sm *SessionManager) error {
	var (
		conn *dbus.Conn
		err  error
	)
	if system {
		conn, err = dbus.ConnectSystemBus()
	} else {
		conn, err = dbus.ConnectSessionBus()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer conn.Close()

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	if err := conn.Export(sm, dbus.ObjectPath(ObjectPath), InterfaceName); err != nil {
		return fmt.Errorf("failed to export interface: %w", err)
	}
	sm.Log.WithField("service", ServiceName).Info("D-Bus service exported")

	<-ctx.Done()
	return nil
}
