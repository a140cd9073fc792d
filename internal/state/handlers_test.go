package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/SoarinFerret/IdleWarden/internal/clock"
	"github.com/SoarinFerret/IdleWarden/internal/logging"
	"github.com/SoarinFerret/IdleWarden/internal/monitor"
)

func tempManager(t *testing.T) (*Manager, *clock.Fake) {
	clk := clock.NewFake(base)
	m, err := NewManager(filepath.Join(t.TempDir(), "state.json"), clk, logging.Discard())
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m, clk
}

func armedAt(at time.Time) monitor.Event {
	return monitor.Event{Type: monitor.EventArmed, At: at, Route: "students", Deadline: at.Add(40 * time.Minute)}
}

func TestHandleConnectAndDisconnect(t *testing.T) {
	m, _ := tempManager(t)

	m.HandleConnect("alice", "sess1", "students")
	u, err := m.state.GetUser("alice")
	if err != nil {
		t.Fatalf("user not found after connect: %v", err)
	}
	if len(u.Sessions) != 1 || u.Sessions[0].SessionId != "sess1" || u.Sessions[0].Route != "students" {
		t.Errorf("session not added on connect: %+v", u.Sessions)
	}

	m.HandleDisconnect("sess1", "disconnected")
	u, _ = m.state.GetUser("alice")
	if u.Sessions[0].IsActive() {
		t.Errorf("session should not be active after disconnect")
	}

	// unknown and repeated disconnects are ignored
	m.HandleDisconnect("sess1", "disconnected")
	m.HandleDisconnect("nope", "disconnected")
}

func TestHandleConnectDuplicateSession(t *testing.T) {
	m, _ := tempManager(t)

	m.HandleConnect("dave", "sess4", "students")
	m.HandleConnect("dave", "sess4", "students")

	u, _ := m.state.GetUser("dave")
	if len(u.Sessions) != 1 {
		t.Errorf("expected 1 session after duplicate connect, got %d", len(u.Sessions))
	}
}

func TestHandleEvent_Lifecycle(t *testing.T) {
	m, clk := tempManager(t)
	observe := func(ev monitor.Event) { m.HandleEvent("carol", "sess3", ev) }
	m.HandleConnect("carol", "sess3", "login")

	observe(armedAt(clk.Now()))
	clk.Advance(35 * time.Minute)
	observe(monitor.Event{Type: monitor.EventWarning, At: clk.Now()})
	observe(monitor.Event{Type: monitor.EventExtended, At: clk.Now()})
	clk.Advance(40 * time.Minute)
	observe(monitor.Event{Type: monitor.EventWarning, At: clk.Now()})
	observe(monitor.Event{Type: monitor.EventExpired, At: clk.Now(), Reason: monitor.ReasonIdleTimeout})
	observe(monitor.Event{Type: monitor.EventDisarmed, At: clk.Now(), Reason: monitor.ReasonIdleTimeout})

	u, _ := m.state.GetUser("carol")
	s, _ := u.GetSessionByID("sess3")
	if s.Route != "students" {
		t.Errorf("Route = %q, want students", s.Route)
	}
	if s.Warnings != 2 || s.Extensions != 1 || !s.Expired {
		t.Errorf("counters = %d/%d/%v, want 2/1/true", s.Warnings, s.Extensions, s.Expired)
	}
	if len(s.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(s.Segments))
	}
	seg := s.Segments[0]
	if seg.Reason != monitor.ReasonIdleTimeout || !seg.EndTime.Equal(base.Add(75*time.Minute)) {
		t.Errorf("unexpected segment: %+v", seg)
	}
	if !s.IsActive() {
		t.Errorf("session stays open until the connection goes away")
	}
}

func TestHandleEvent_RearmStartsNewSegment(t *testing.T) {
	m, clk := tempManager(t)
	m.HandleConnect("erin", "sess5", "students")

	m.HandleEvent("erin", "sess5", armedAt(clk.Now()))
	m.HandleEvent("erin", "sess5", armedAt(clk.Now()))
	clk.Advance(time.Minute)
	m.HandleEvent("erin", "sess5", monitor.Event{Type: monitor.EventDisarmed, At: clk.Now(), Reason: monitor.ReasonExcluded})
	clk.Advance(time.Minute)
	m.HandleEvent("erin", "sess5", armedAt(clk.Now()))

	u, _ := m.state.GetUser("erin")
	s, _ := u.GetSessionByID("sess5")
	if len(s.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(s.Segments))
	}
	if s.IsIdle() {
		t.Errorf("second segment should be open")
	}
}

func TestHandleEvent_UnknownSession(t *testing.T) {
	m, clk := tempManager(t)
	m.HandleEvent("ghost", "sess", armedAt(clk.Now()))
	if len(m.Usernames()) != 0 {
		t.Errorf("event for unknown user should not create history")
	}
}
