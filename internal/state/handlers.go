package state

import (
	"github.com/sirupsen/logrus"

	"github.com/SoarinFerret/IdleWarden/internal/monitor"
	"github.com/SoarinFerret/IdleWarden/internal/session"
)

// HandleConnect records a new browsing context for user.
func (m *Manager) HandleConnect(user, sessionID, route string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, err := m.state.GetUser(user)
	if err != nil {
		u = &session.User{Sessions: []session.SessionRecord{}}
	}

	rec := u.AddSession(m.clock.Now(), sessionID)
	rec.Route = route
	m.state.Users[user] = *u
	m.saveLocked()
}

// HandleDisconnect ends the session when its connection goes away.
func (m *Manager) HandleDisconnect(sessionID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	username, u, err := m.state.GetUserBySession(sessionID)
	if err != nil {
		m.log.WithError(err).Warn("Disconnect for unknown session")
		return
	}

	if err := u.EndSession(m.clock.Now(), sessionID, reason); err != nil {
		m.log.WithError(err).Debug("Session already ended")
		return
	}
	m.state.Users[username] = *u
	m.saveLocked()
}

// HandleEvent folds a monitor lifecycle event into the session history.
func (m *Manager) HandleEvent(user, sessionID string, ev monitor.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, err := m.state.GetUser(user)
	if err != nil {
		m.log.WithError(err).Warn("Monitor event for unknown user")
		return
	}
	rec, err := u.GetSessionByID(sessionID)
	if err != nil {
		m.log.WithError(err).Warn("Monitor event for unknown session")
		return
	}

	switch ev.Type {
	case monitor.EventArmed:
		rec.Route = ev.Route
		if err := rec.AddSegment(ev.At); err != nil {
			m.log.WithError(err).Debug("Ignoring duplicate armed event")
		}
	case monitor.EventWarning:
		rec.RecordWarning()
	case monitor.EventExtended:
		rec.RecordExtension()
	case monitor.EventExpired:
		rec.RecordExpiry()
	case monitor.EventDisarmed:
		rec.EndSegment(ev.At, ev.Reason)
	default:
		return
	}

	m.state.Users[user] = *u
	m.saveLocked()

	m.log.WithFields(logrus.Fields{
		"user":       user,
		"session_id": sessionID,
		"event":      ev.Type,
	}).Debug("Recorded monitor event")
}
