package state

import (
	"fmt"
	"time"

	"github.com/SoarinFerret/IdleWarden/internal/session"
)

// State is the top-level structure stored in the state.json file.
type State struct {
	Users     map[string]session.User `json:"users"`
	Version   int                     `json:"version"`
	HeartBeat time.Time               `json:"-"` // not stored in JSON
}

func (s *State) GetUser(username string) (*session.User, error) {
	user, exists := s.Users[username]
	if !exists {
		return nil, fmt.Errorf("user %s not found", username)
	}
	return &user, nil
}

func (s *State) GetUserBySession(sessionID string) (string, *session.User, error) {
	for uname, user := range s.Users {
		for _, rec := range user.Sessions {
			if rec.SessionId == sessionID {
				return uname, &user, nil
			}
		}
	}
	return "", nil, fmt.Errorf("session ID %s not found", sessionID)
}

// EndAllSessions closes every open session of every user.
func (s *State) EndAllSessions(end time.Time, reason string) int {
	var n int
	for uname, user := range s.Users {
		n += user.EndAllSessions(end, reason)
		s.Users[uname] = user
	}
	return n
}

// Prune drops sessions that ended before cutoff and users left without history.
func (s *State) Prune(cutoff time.Time) int {
	var n int
	for uname, user := range s.Users {
		n += user.Prune(cutoff)
		if len(user.Sessions) == 0 {
			delete(s.Users, uname)
			continue
		}
		s.Users[uname] = user
	}
	return n
}
