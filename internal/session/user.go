package session

import (
	"fmt"
	"time"
)

// AddSession records a new browsing context. A repeated id is ignored.
func (u *User) AddSession(start time.Time, sessionID string) *SessionRecord {
	if s, err := u.GetSessionByID(sessionID); err == nil {
		return s
	}
	var s SessionRecord
	s.SessionId = sessionID
	s.Start(start)
	u.Sessions = append(u.Sessions, s)
	return &u.Sessions[len(u.Sessions)-1]
}

func (u *User) GetSessionByID(sessionID string) (*SessionRecord, error) {
	for i := range u.Sessions {
		if u.Sessions[i].SessionId == sessionID {
			return &u.Sessions[i], nil
		}
	}
	return nil, fmt.Errorf("session ID %s not found", sessionID)
}

func (u *User) EndSession(end time.Time, sessionID, reason string) error {
	s, err := u.GetSessionByID(sessionID)
	if err != nil {
		return err
	}
	if !s.IsActive() {
		return fmt.Errorf("session ID %s already ended", sessionID)
	}
	s.End(end, reason)
	return nil
}

// EndAllSessions closes every open session, e.g. after an unclean shutdown.
func (u *User) EndAllSessions(end time.Time, reason string) int {
	var n int
	for i := range u.Sessions {
		if u.Sessions[i].IsActive() {
			u.Sessions[i].End(end, reason)
			n++
		}
	}
	return n
}

func (u *User) ActiveSessions() []SessionRecord {
	var active []SessionRecord
	for _, s := range u.Sessions {
		if s.IsActive() {
			active = append(active, s)
		}
	}
	return active
}

// ExpiryCount returns how many sessions ended by forced expiry since the given time.
func (u *User) ExpiryCount(since time.Time) int {
	var n int
	for _, s := range u.Sessions {
		if s.Expired && !s.StartTime.Before(since) {
			n++
		}
	}
	return n
}

// Prune drops ended sessions that finished before cutoff and reports how many were removed.
func (u *User) Prune(cutoff time.Time) int {
	kept := u.Sessions[:0]
	for _, s := range u.Sessions {
		if !s.IsActive() && s.EndTime.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
	}
	removed := len(u.Sessions) - len(kept)
	u.Sessions = kept
	return removed
}
