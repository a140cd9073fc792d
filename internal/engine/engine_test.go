package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoarinFerret/IdleWarden/internal/auth"
	"github.com/SoarinFerret/IdleWarden/internal/clock"
	"github.com/SoarinFerret/IdleWarden/internal/logging"
	"github.com/SoarinFerret/IdleWarden/internal/state"
)

var epoch = time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

type fakePresence struct {
	mu      sync.Mutex
	id      auth.Identity
	active  bool
	reasons []string
}

func (p *fakePresence) Identity() auth.Identity { return p.id }

func (p *fakePresence) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *fakePresence) EndPresence(_ context.Context, reason string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return false
	}
	p.active = false
	p.reasons = append(p.reasons, reason)
	return true
}

type fixture struct {
	clk       *clock.Fake
	validator *auth.Validator
	auth      *auth.Service
	state     *state.Manager
	live      []*fakePresence
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(epoch)
	v, err := auth.NewValidator("0123456789abcdef0123456789abcdef", "", "HS256", clk)
	require.NoError(t, err)
	store := auth.NewMemoryStore(clk, logging.Discard())
	t.Cleanup(func() { store.Close() })
	mgr, err := state.NewManager(filepath.Join(t.TempDir(), "state.json"), clk, logging.Discard())
	require.NoError(t, err)

	return &fixture{
		clk:       clk,
		validator: v,
		auth:      auth.NewService(v, store, "admin", clk, logging.Discard()),
		state:     mgr,
	}
}

func (f *fixture) add(t *testing.T, user string, ttl time.Duration) *fakePresence {
	t.Helper()
	token, _, err := f.validator.Issue(auth.Identity{UserID: "id-" + user, Username: user, Role: "staff"}, ttl)
	require.NoError(t, err)
	id, err := f.auth.Authenticate(context.Background(), token)
	require.NoError(t, err)

	p := &fakePresence{id: id, active: true}
	f.live = append(f.live, p)
	return p
}

func (f *fixture) engine(retention time.Duration) *Engine {
	return NewEngine(func() []Presence {
		out := make([]Presence, 0, len(f.live))
		for _, p := range f.live {
			out = append(out, p)
		}
		return out
	}, f.auth, f.state, time.Minute, retention, f.clk, logging.Discard())
}

func TestCheckSessions(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture) *fakePresence
		advance time.Duration
		ended   int
		reason  string
	}{
		{
			name: "valid sign-in is left alone",
			setup: func(t *testing.T, f *fixture) *fakePresence {
				return f.add(t, "amina", 8*time.Hour)
			},
			advance: time.Hour,
		},
		{
			name: "expired token ends presence",
			setup: func(t *testing.T, f *fixture) *fakePresence {
				return f.add(t, "amina", time.Hour)
			},
			advance: time.Hour,
			ended:   1,
			reason:  ReasonTokenExpired,
		},
		{
			name: "revoked token ends presence",
			setup: func(t *testing.T, f *fixture) *fakePresence {
				p := f.add(t, "amina", 8*time.Hour)
				require.NoError(t, f.auth.Logout(context.Background(), p.id))
				return p
			},
			ended:  1,
			reason: ReasonTokenRevoked,
		},
		{
			name: "inactive presence is skipped",
			setup: func(t *testing.T, f *fixture) *fakePresence {
				p := f.add(t, "amina", time.Minute)
				p.active = false
				return p
			},
			advance: time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := tt.setup(t, f)
			f.clk.Advance(tt.advance)

			assert.Equal(t, tt.ended, f.engine(0).checkSessions(context.Background()))
			if tt.reason != "" {
				assert.Equal(t, []string{tt.reason}, p.reasons)
			} else {
				assert.Empty(t, p.reasons)
			}
		})
	}
}

func TestCheckSessions_EndsPresenceOnce(t *testing.T) {
	f := newFixture(t)
	p := f.add(t, "amina", time.Hour)
	f.clk.Advance(2 * time.Hour)

	e := f.engine(0)
	assert.Equal(t, 1, e.checkSessions(context.Background()))
	assert.Equal(t, 0, e.checkSessions(context.Background()))
	assert.Len(t, p.reasons, 1)
}

func TestCheckSessions_HeartbeatAndPrune(t *testing.T) {
	f := newFixture(t)
	f.state.HandleConnect("amina", "s1", "students")
	f.state.HandleDisconnect("s1", "disconnected")

	f.clk.Advance(48 * time.Hour)
	f.engine(24 * time.Hour).checkSessions(context.Background())

	assert.Equal(t, epoch.Add(48*time.Hour), f.state.LastHeartbeat())
	_, err := f.state.GetUser("amina")
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	p := f.add(t, "amina", time.Hour)
	f.clk.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine(0).Run(ctx) }()

	// the first sweep runs immediately
	assert.Eventually(t, func() bool { return !p.Active() }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
}
