package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultTotalTimeout = 40 * time.Minute
	DefaultWarningLead  = 5 * time.Minute
	DefaultLoginRoute   = "login"
)

// ErrInvalidConfig is returned by New when the timing policy is unusable.
var ErrInvalidConfig = errors.New("invalid monitor config")

// State is the arming state of a Monitor.
type State int

const (
	Disarmed State = iota
	ArmedWaiting
	ArmedWarningShown
)

func (s State) String() string {
	switch s {
	case Disarmed:
		return "DISARMED"
	case ArmedWaiting:
		return "ARMED"
	case ArmedWarningShown:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

// Armed reports whether timers are counting down in this state.
func (s State) Armed() bool {
	return s == ArmedWaiting || s == ArmedWarningShown
}

// EventKind is a kind of user interaction reported by the browsing surface.
type EventKind string

const (
	PointerDown EventKind = "mousedown"
	PointerMove EventKind = "mousemove"
	KeyDown     EventKind = "keydown"
	KeyPress    EventKind = "keypress"
	Scroll      EventKind = "scroll"
	TouchStart  EventKind = "touchstart"
	Click       EventKind = "click"
)

// DefaultActivityKinds are the interactions that count as activity.
var DefaultActivityKinds = []EventKind{PointerDown, PointerMove, KeyDown, KeyPress, Scroll, TouchStart, Click}

// DefaultExcludedRoutes are the routes on which a monitor never arms.
var DefaultExcludedRoutes = []string{"login", "register"}

// Config is the timing policy of a Monitor.
type Config struct {
	TotalTimeout   time.Duration
	WarningLead    time.Duration
	ExcludedRoutes []string
	ActivityKinds  []EventKind
	LoginRoute     string
}

// DefaultConfig returns the 40 minute / 5 minute policy.
func DefaultConfig() Config {
	return Config{
		TotalTimeout:   DefaultTotalTimeout,
		WarningLead:    DefaultWarningLead,
		ExcludedRoutes: append([]string(nil), DefaultExcludedRoutes...),
		ActivityKinds:  append([]EventKind(nil), DefaultActivityKinds...),
		LoginRoute:     DefaultLoginRoute,
	}
}

// Auth ends the authenticated session.
type Auth interface {
	Logout(ctx context.Context) error
}

// Navigator moves the browsing context to another route.
type Navigator interface {
	Redirect(ctx context.Context, route string, replaceHistory bool) error
}

// InteractionSource delivers user interaction events. Implementations must
// not hold their own locks while invoking fn.
type InteractionSource interface {
	Subscribe(kinds []EventKind, fn func(EventKind)) (unsubscribe func())
}

// Prompter asks the user a yes/no question and blocks until answered or
// until ctx is done.
type Prompter interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// Notifier shows an informational message to the user.
type Notifier interface {
	Alert(ctx context.Context, message string) error
}

// EventType identifies a monitor lifecycle event.
type EventType string

const (
	EventArmed        EventType = "armed"
	EventWarning      EventType = "warning"
	EventExtended     EventType = "extended"
	EventExpired      EventType = "expired"
	EventLogoutFailed EventType = "logout_failed"
	EventDisarmed     EventType = "disarmed"
)

// Disarm reasons carried by EventDisarmed and EventExpired.
const (
	ReasonInactive    = "session inactive"
	ReasonExcluded    = "excluded route"
	ReasonLogout      = "logout"
	ReasonIdleTimeout = "idle timeout"
	ReasonDeclined    = "declined"
	ReasonClosed      = "closed"
)

// Event is delivered to the Observer on lifecycle transitions.
type Event struct {
	Type   EventType
	At     time.Time
	Route  string
	Reason string
	// Deadline is the expiry deadline in force after the event, if any.
	Deadline time.Time
}

// Snapshot is a point-in-time copy of the monitor state.
type Snapshot struct {
	State          State     `json:"state"`
	SessionActive  bool      `json:"session_active"`
	Route          string    `json:"route"`
	ArmedAt        time.Time `json:"armed_at,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at,omitempty"`
	WarningAt      time.Time `json:"warning_at,omitempty"`
	ExpiryAt       time.Time `json:"expiry_at,omitempty"`
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "DISARMED":
		*s = Disarmed
	case "ARMED":
		*s = ArmedWaiting
	case "WARNING":
		*s = ArmedWarningShown
	default:
		return fmt.Errorf("unknown monitor state %q", text)
	}
	return nil
}
