// Package engine runs the periodic housekeeping sweep over live sessions.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SoarinFerret/IdleWarden/internal/auth"
	"github.com/SoarinFerret/IdleWarden/internal/clock"
	"github.com/SoarinFerret/IdleWarden/internal/state"
)

// Reasons passed to Presence.EndPresence.
const (
	ReasonTokenExpired = "token expired"
	ReasonTokenRevoked = "token revoked"
)

// Presence is a live console tab as seen by the sweep.
type Presence interface {
	Identity() auth.Identity
	Active() bool
	EndPresence(ctx context.Context, reason string) bool
}

// Engine ends presence for sign-ins that lapsed outside the monitor and
// keeps the state file fresh.
type Engine struct {
	sessions  func() []Presence
	auth      *auth.Service
	stateMgr  *state.Manager
	interval  time.Duration
	retention time.Duration
	clock     clock.Clock
	log       logrus.FieldLogger
}

// NewEngine creates a new sweep engine. retention <= 0 disables pruning.
func NewEngine(sessions func() []Presence, authSvc *auth.Service, stateMgr *state.Manager, interval, retention time.Duration, clk clock.Clock, logger logrus.FieldLogger) *Engine {
	if interval <= 0 {
		interval = time.Minute
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{
		sessions:  sessions,
		auth:      authSvc,
		stateMgr:  stateMgr,
		interval:  interval,
		retention: retention,
		clock:     clk,
		log:       logger,
	}
}

// Run starts the periodic sweep and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.WithField("interval", e.interval).Info("Engine started, sweeping live sessions")

	// Run immediately on start
	e.checkSessions(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("Engine shutting down")
			return nil
		case <-ticker.C:
			e.checkSessions(ctx)
		}
	}
}

// checkSessions evaluates every live session once and returns how many
// were sent back to login.
func (e *Engine) checkSessions(ctx context.Context) int {
	now := e.clock.Now()
	ended := 0

	for _, p := range e.sessions() {
		if !p.Active() {
			continue
		}
		id := p.Identity()

		reason := ""
		switch err := e.auth.Check(ctx, id, now); {
		case err == nil:
			continue
		case errors.Is(err, auth.ErrExpired):
			reason = ReasonTokenExpired
		case errors.Is(err, auth.ErrRevoked):
			reason = ReasonTokenRevoked
		default:
			// store unreachable; try again next tick
			e.log.WithError(err).WithField("user", id.Username).Warn("Failed to check sign-in")
			continue
		}

		if p.EndPresence(ctx, reason) {
			ended++
			e.log.WithFields(logrus.Fields{
				"user":   id.Username,
				"reason": reason,
			}).Info("Ended presence for lapsed sign-in")
		}
	}

	if e.stateMgr != nil {
		e.stateMgr.Heartbeat()
		if e.retention > 0 {
			if n := e.stateMgr.Prune(e.retention); n > 0 {
				e.log.WithField("sessions", n).Debug("Pruned session history")
			}
		}
	}
	return ended
}
