// Package monitor enforces the idle-timeout policy of one browsing context.
//
// A Monitor is armed while the user is signed in and on a non-excluded
// route. Every qualifying interaction pushes the warning and expiry
// deadlines forward. When the warning deadline passes the user is asked
// whether to stay signed in; declining, or letting the expiry deadline pass,
// forces logout and a redirect to the login route.
//
// All state lives behind one mutex and collaborators are never called with
// it held. Timer callbacks carry the generation they were scheduled under
// and do nothing once the generation has moved on.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SoarinFerret/IdleWarden/internal/clock"
	"github.com/SoarinFerret/IdleWarden/internal/eval"
)

// sideEffectTimeout bounds the alert, logout and redirect calls of a forced expiry.
const sideEffectTimeout = 15 * time.Second

// Deps are the collaborators of a Monitor. Clock, Logger and Observer are optional.
type Deps struct {
	Auth      Auth
	Navigator Navigator
	Source    InteractionSource
	Prompter  Prompter
	Notifier  Notifier
	Clock     clock.Clock
	Logger    logrus.FieldLogger
	Observer  func(Event)
}

// Monitor is the session monitor of a single browsing context.
type Monitor struct {
	cfg  Config
	deps Deps
	log  logrus.FieldLogger

	mu             sync.Mutex
	state          State
	attached       bool
	closed         bool
	expiring       bool
	sessionActive  bool
	route          string
	gen            uint64
	armedAt        time.Time
	lastActivityAt time.Time
	warningAt      time.Time
	expiryAt       time.Time
	warningTimer   clock.Timer
	expiryTimer    clock.Timer
	unsubscribe    func()
	cancelPrompt   context.CancelFunc
}

// New validates cfg and returns a disarmed Monitor.
func New(cfg Config, deps Deps) (*Monitor, error) {
	if cfg.TotalTimeout <= 0 || cfg.WarningLead <= 0 || cfg.WarningLead >= cfg.TotalTimeout {
		return nil, fmt.Errorf("%w: warning lead %s must be positive and less than total timeout %s",
			ErrInvalidConfig, cfg.WarningLead, cfg.TotalTimeout)
	}
	if deps.Auth == nil || deps.Navigator == nil || deps.Source == nil || deps.Prompter == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("%w: auth, navigator, source, prompter and notifier are required", ErrInvalidConfig)
	}

	if cfg.ExcludedRoutes == nil {
		cfg.ExcludedRoutes = DefaultExcludedRoutes
	}
	if len(cfg.ActivityKinds) == 0 {
		cfg.ActivityKinds = DefaultActivityKinds
	}
	if cfg.LoginRoute == "" {
		cfg.LoginRoute = DefaultLoginRoute
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	return &Monitor{cfg: cfg, deps: deps, log: deps.Logger}, nil
}

// Attach re-evaluates whether the monitor should be armed. Call it whenever
// the session presence or the current route changes; calls with unchanged
// inputs are ignored.
func (m *Monitor) Attach(sessionActive bool, route string) {
	route = eval.NormalizeRoute(route)

	m.mu.Lock()
	// a forced expiry in progress owns presence until its redirect is sent
	if m.closed || m.expiring || (m.attached && m.sessionActive == sessionActive && m.route == route) {
		m.mu.Unlock()
		return
	}
	m.attached = true
	m.sessionActive = sessionActive
	m.route = route

	var events []Event
	now := m.deps.Clock.Now()
	if eval.Eligible(sessionActive, route, m.cfg.ExcludedRoutes) {
		switch m.state {
		case Disarmed:
			events = append(events, m.armLocked(now))
		case ArmedWaiting:
			// navigation between protected routes counts as activity
			m.lastActivityAt = now
			m.scheduleLocked(now)
		case ArmedWarningShown:
			// the open prompt owns the schedule until it resolves
		}
	} else if m.state.Armed() {
		reason := ReasonInactive
		if sessionActive {
			reason = ReasonExcluded
		}
		events = append(events, m.disarmLocked(now, reason))
	}
	m.mu.Unlock()

	m.emit(events...)
}

// OnActivity pushes both deadlines forward from now. It does nothing while
// disarmed or while the warning prompt is open.
func (m *Monitor) OnActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != ArmedWaiting {
		return
	}
	now := m.deps.Clock.Now()
	m.lastActivityAt = now
	m.scheduleLocked(now)
}

// Logout records an explicit logout: any state becomes Disarmed and the
// session is considered inactive until the next Attach says otherwise.
func (m *Monitor) Logout() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.attached = true
	m.sessionActive = false

	var events []Event
	if m.state.Armed() {
		events = append(events, m.disarmLocked(m.deps.Clock.Now(), ReasonLogout))
	}
	m.mu.Unlock()

	m.emit(events...)
}

// ForceExpire runs the forced-expiry path immediately. It reports false if
// the monitor was not armed.
func (m *Monitor) ForceExpire(reason string) bool {
	m.mu.Lock()
	armed := m.state.Armed()
	gen := m.gen
	m.mu.Unlock()

	if !armed {
		return false
	}
	return m.expire(gen, reason)
}

// Close disarms the monitor for good; later calls are ignored.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true

	var events []Event
	if m.state.Armed() {
		events = append(events, m.disarmLocked(m.deps.Clock.Now(), ReasonClosed))
	}
	m.mu.Unlock()

	m.emit(events...)
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		State:          m.state,
		SessionActive:  m.sessionActive,
		Route:          m.route,
		ArmedAt:        m.armedAt,
		LastActivityAt: m.lastActivityAt,
		WarningAt:      m.warningAt,
		ExpiryAt:       m.expiryAt,
	}
}

// armLocked must be called with m.mu held.
func (m *Monitor) armLocked(now time.Time) Event {
	m.state = ArmedWaiting
	m.armedAt = now
	m.lastActivityAt = now
	if m.unsubscribe == nil {
		m.unsubscribe = m.deps.Source.Subscribe(m.cfg.ActivityKinds, m.onInteraction)
	}
	m.scheduleLocked(now)

	m.log.WithFields(logrus.Fields{
		"route":      m.route,
		"expires_at": m.expiryAt.Format(time.RFC3339),
	}).Debug("Session monitor armed")

	return Event{Type: EventArmed, At: now, Route: m.route, Deadline: m.expiryAt}
}

// scheduleLocked replaces both timers with fresh ones counting from from.
// Must be called with m.mu held.
func (m *Monitor) scheduleLocked(from time.Time) {
	m.stopTimersLocked()
	m.gen++
	gen := m.gen

	m.warningAt, m.expiryAt = eval.Deadlines(from, m.cfg.TotalTimeout, m.cfg.WarningLead)
	m.warningTimer = m.deps.Clock.AfterFunc(m.cfg.TotalTimeout-m.cfg.WarningLead, func() { m.onWarningFire(gen) })
	m.expiryTimer = m.deps.Clock.AfterFunc(m.cfg.TotalTimeout, func() { m.onExpiryFire(gen) })
}

// disarmLocked must be called with m.mu held.
func (m *Monitor) disarmLocked(now time.Time, reason string) Event {
	m.stopTimersLocked()
	if m.cancelPrompt != nil {
		m.cancelPrompt()
		m.cancelPrompt = nil
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.gen++
	m.state = Disarmed
	m.warningAt = time.Time{}
	m.expiryAt = time.Time{}

	m.log.WithFields(logrus.Fields{"route": m.route, "reason": reason}).Debug("Session monitor disarmed")

	return Event{Type: EventDisarmed, At: now, Route: m.route, Reason: reason}
}

func (m *Monitor) stopTimersLocked() {
	if m.warningTimer != nil {
		m.warningTimer.Stop()
		m.warningTimer = nil
	}
	if m.expiryTimer != nil {
		m.expiryTimer.Stop()
		m.expiryTimer = nil
	}
}

func (m *Monitor) onInteraction(EventKind) {
	m.OnActivity()
}

func (m *Monitor) onWarningFire(gen uint64) {
	m.mu.Lock()
	if m.state != ArmedWaiting || gen != m.gen {
		m.mu.Unlock()
		return
	}
	now := m.deps.Clock.Now()
	m.state = ArmedWarningShown
	m.warningTimer = nil
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelPrompt = cancel
	remaining := eval.Remaining(m.expiryAt, now)
	ev := Event{Type: EventWarning, At: now, Route: m.route, Deadline: m.expiryAt}
	m.mu.Unlock()

	m.emit(ev)
	m.log.WithField("expires_in", remaining.String()).Info("Session idle, asking user to continue")

	stay, err := m.deps.Prompter.Confirm(ctx, eval.WarningMessage(remaining))
	if err != nil {
		if ctx.Err() == nil {
			m.log.WithError(err).Warn("Warning prompt failed, treating as decline")
		}
		stay = false
	}
	cancel()

	m.mu.Lock()
	if m.state != ArmedWarningShown || gen != m.gen {
		// disarmed or expired while the prompt was open
		m.mu.Unlock()
		return
	}
	m.cancelPrompt = nil
	if stay {
		now = m.deps.Clock.Now()
		m.state = ArmedWaiting
		m.lastActivityAt = now
		m.scheduleLocked(now)
		ev = Event{Type: EventExtended, At: now, Route: m.route, Deadline: m.expiryAt}
		m.mu.Unlock()

		m.emit(ev)
		return
	}
	m.mu.Unlock()

	m.expire(gen, ReasonDeclined)
}

func (m *Monitor) onExpiryFire(gen uint64) {
	m.expire(gen, ReasonIdleTimeout)
}

// expire disarms the monitor and performs the forced logout. The redirect
// to the login route is issued even when logout fails.
func (m *Monitor) expire(gen uint64, reason string) bool {
	m.mu.Lock()
	if !m.state.Armed() || gen != m.gen {
		m.mu.Unlock()
		return false
	}
	now := m.deps.Clock.Now()
	route := m.route
	expired := Event{Type: EventExpired, At: now, Route: route, Reason: reason}
	disarmed := m.disarmLocked(now, reason)
	m.attached = true
	m.sessionActive = false
	m.expiring = true
	m.mu.Unlock()

	m.emit(expired)
	m.log.WithFields(logrus.Fields{"route": route, "reason": reason}).Info("Session expired, forcing logout")

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if err := m.deps.Notifier.Alert(ctx, eval.ExpiredMessage); err != nil {
		m.log.WithError(err).Warn("Failed to show expiry notice")
	}
	if err := m.logout(ctx); err != nil {
		m.log.WithError(err).Error("Logout failed during forced expiry, redirecting anyway")
		m.emit(Event{Type: EventLogoutFailed, At: m.deps.Clock.Now(), Route: route, Reason: err.Error()})
	}
	if err := m.deps.Navigator.Redirect(ctx, m.cfg.LoginRoute, true); err != nil {
		m.log.WithError(err).Error("Failed to redirect to login route")
	}

	m.mu.Lock()
	m.expiring = false
	m.mu.Unlock()

	m.emit(disarmed)
	return true
}

func (m *Monitor) logout(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("logout panicked: %v", r)
		}
	}()
	return m.deps.Auth.Logout(ctx)
}

func (m *Monitor) emit(events ...Event) {
	if m.deps.Observer == nil {
		return
	}
	for _, ev := range events {
		m.deps.Observer(ev)
	}
}
