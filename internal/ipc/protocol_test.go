package ipc

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoarinFerret/IdleWarden/internal/clock"
	"github.com/SoarinFerret/IdleWarden/internal/gateway"
	"github.com/SoarinFerret/IdleWarden/internal/logging"
	"github.com/SoarinFerret/IdleWarden/internal/monitor"
	"github.com/SoarinFerret/IdleWarden/internal/state"
)

func newSessionManager(t *testing.T) (*SessionManager, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC))
	mgr, err := state.NewManager(filepath.Join(t.TempDir(), "state.json"), clk, logging.Discard())
	require.NoError(t, err)
	return &SessionManager{
		State:    mgr,
		Registry: gateway.NewRegistry(),
		Clock:    clk,
		Log:      logging.Discard(),
	}, clk
}

func TestGetStatus(t *testing.T) {
	sm, _ := newSessionManager(t)
	status, dErr := sm.GetStatus()
	assert.Nil(t, dErr)
	assert.Equal(t, "Service is running, 0 live session(s), 0 user(s) with history", status)
}

func TestListSessions_Empty(t *testing.T) {
	sm, _ := newSessionManager(t)
	out, dErr := sm.ListSessions()
	require.Nil(t, dErr)
	assert.Equal(t, "[]", out)
}

func TestGetUserStatus(t *testing.T) {
	sm, clk := newSessionManager(t)

	_, dErr := sm.GetUserStatus("nobody")
	assert.NotNil(t, dErr)

	sm.State.HandleConnect("amina", "s1", "students")
	sm.State.HandleEvent("amina", "s1", monitor.Event{Type: monitor.EventArmed, At: clk.Now(), Route: "students"})
	clk.Advance(40 * time.Minute)
	sm.State.HandleEvent("amina", "s1", monitor.Event{Type: monitor.EventExpired, At: clk.Now(), Reason: monitor.ReasonIdleTimeout})
	sm.State.HandleDisconnect("s1", "disconnected")

	out, dErr := sm.GetUserStatus("amina")
	require.Nil(t, dErr)

	var status UserStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "amina", status.User)
	assert.Empty(t, status.Live)
	require.Len(t, status.Sessions, 1)
	assert.True(t, status.Sessions[0].Expired)
	assert.Equal(t, 1, status.Expiries24)
	assert.Zero(t, status.Connected)
}

func TestExpireSession_Unknown(t *testing.T) {
	sm, _ := newSessionManager(t)
	assert.NotNil(t, sm.ExpireSession("missing"))
}

func TestSendNotification_NoSessions(t *testing.T) {
	sm, _ := newSessionManager(t)
	assert.NotNil(t, sm.SendNotification("amina", "Fire drill at 10:00"))
}
