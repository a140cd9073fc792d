package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SoarinFerret/IdleWarden/internal/clock"
	"github.com/SoarinFerret/IdleWarden/internal/session"
)

// ReasonRestart closes sessions left open by a previous daemon run.
const ReasonRestart = "daemon restart"

// Manager handles reading and writing state.json safely.
type Manager struct {
	path  string
	clock clock.Clock
	log   logrus.FieldLogger
	mu    sync.Mutex
	state *State
}

// NewManager loads or initializes a new state manager. clk and logger may be nil.
func NewManager(path string, clk clock.Clock, logger logrus.FieldLogger) (*Manager, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &Manager{path: path, clock: clk, log: logger}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	if err := m.load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load state %s: %w", path, err)
		}
		m.state = &State{
			Users:     make(map[string]session.User),
			HeartBeat: clk.Now(),
			Version:   1,
		}
		if err := m.save(); err != nil {
			return nil, fmt.Errorf("initialize state %s: %w", path, err)
		}
		return m, nil
	}

	m.startUpChecks()
	return m, nil
}

// load reads the state file into memory.
func (m *Manager) load() error {
	var s State

	// read mtime of file to set heartbeat
	info, err := os.Stat(m.path)
	if err != nil {
		return err
	}
	s.HeartBeat = info.ModTime()

	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.Users == nil {
		s.Users = make(map[string]session.User)
	}

	m.state = &s
	return nil
}

func (m *Manager) Heartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.clock.Now()
	if err := os.Chtimes(m.path, t, t); err != nil {
		m.log.WithError(err).Warn("Failed to touch state file")
	}
	m.state.HeartBeat = t
}

// save atomically writes the state file to disk.
func (m *Manager) save() error {
	tmp := m.path + ".tmp"
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, m.path)
}

// saveLocked saves and logs failures; the in-memory state stays authoritative.
func (m *Manager) saveLocked() {
	if err := m.save(); err != nil {
		m.log.WithError(err).WithField("path", m.path).Error("Failed to save state")
	}
}

// startUpChecks closes sessions the previous run left open. Browser
// connections never survive a restart, so they are ended at the last
// heartbeat.
func (m *Manager) startUpChecks() {
	m.mu.Lock()
	defer m.mu.Unlock()

	lastHeartbeat := m.state.HeartBeat
	if n := m.state.EndAllSessions(lastHeartbeat, ReasonRestart); n > 0 {
		m.log.WithFields(logrus.Fields{
			"sessions":       n,
			"last_heartbeat": lastHeartbeat.Format(time.RFC3339),
		}).Warn("Closed sessions left open by previous run")
		m.saveLocked()
	}

	m.state.HeartBeat = m.clock.Now()
}

// Prune removes history older than retention.
func (m *Manager) Prune(retention time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.state.Prune(m.clock.Now().Add(-retention))
	if n > 0 {
		m.saveLocked()
	}
	return n
}

// GetUser returns a copy of a user's history.
func (m *Manager) GetUser(username string) (session.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, err := m.state.GetUser(username)
	if err != nil {
		return session.User{}, err
	}
	cp := session.User{Sessions: make([]session.SessionRecord, len(u.Sessions))}
	for i, rec := range u.Sessions {
		rec.Segments = append([]session.SegmentRecord(nil), rec.Segments...)
		cp.Sessions[i] = rec
	}
	return cp, nil
}

// Usernames returns the users with recorded history, sorted.
func (m *Manager) Usernames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.state.Users))
	for name := range m.state.Users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LastHeartbeat returns the time of the last heartbeat.
func (m *Manager) LastHeartbeat() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.HeartBeat
}
