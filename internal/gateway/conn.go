package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/SoarinFerret/IdleWarden/internal/monitor"
)

// ErrClosed is returned by Conn methods once the tab has gone away.
var ErrClosed = errors.New("connection closed")

type listener struct {
	kinds map[monitor.EventKind]struct{}
	fn    func(monitor.EventKind)
}

// Conn is the websocket of one console tab. It is the interaction source,
// navigator, prompter and notifier of that tab's monitor.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	log          logrus.FieldLogger

	// deadline reports the expiry shown in prompts; optional.
	deadline func() time.Time

	// gorilla allows one concurrent writer
	writeMu sync.Mutex

	mu           sync.Mutex
	closed       bool
	done         chan struct{}
	nextListener int
	listeners    map[int]listener
	prompts      map[string]chan bool
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration, logger logrus.FieldLogger) *Conn {
	return &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		log:          logger,
		done:         make(chan struct{}),
		listeners:    make(map[int]listener),
		prompts:      make(map[string]chan bool),
	}
}

// Subscribe registers fn for the given interaction kinds.
func (c *Conn) Subscribe(kinds []monitor.EventKind, fn func(monitor.EventKind)) func() {
	set := make(map[monitor.EventKind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}

	c.mu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners[id] = listener{kinds: set, fn: fn}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// dispatch delivers an interaction to matching listeners outside the lock.
func (c *Conn) dispatch(kind monitor.EventKind) int {
	c.mu.Lock()
	var fns []func(monitor.EventKind)
	for _, l := range c.listeners {
		if _, ok := l.kinds[kind]; ok {
			fns = append(fns, l.fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(kind)
	}
	return len(fns)
}

func (c *Conn) Redirect(ctx context.Context, route string, replaceHistory bool) error {
	return c.send(ServerMessage{Type: MsgRedirect, Route: route, Replace: replaceHistory})
}

func (c *Conn) Alert(ctx context.Context, message string) error {
	return c.send(ServerMessage{Type: MsgAlert, Message: message})
}

// Confirm shows a stay-signed-in prompt and waits for the tab's answer.
// When ctx ends first the prompt is withdrawn.
func (c *Conn) Confirm(ctx context.Context, message string) (bool, error) {
	id := uuid.NewString()
	answer := make(chan bool, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	c.prompts[id] = answer
	c.mu.Unlock()
	defer c.forgetPrompt(id)

	msg := ServerMessage{Type: MsgPrompt, ID: id, Message: message}
	if c.deadline != nil {
		if at := c.deadline(); !at.IsZero() {
			msg.ExpiresAt = &at
		}
	}
	if err := c.send(msg); err != nil {
		return false, err
	}

	select {
	case stay := <-answer:
		return stay, nil
	case <-ctx.Done():
		if err := c.send(ServerMessage{Type: MsgPromptCancel, ID: id}); err != nil && !errors.Is(err, ErrClosed) {
			c.log.WithError(err).Debug("Failed to withdraw prompt")
		}
		return false, ctx.Err()
	case <-c.done:
		return false, ErrClosed
	}
}

// resolvePrompt delivers the answer to an open prompt; unknown ids are ignored.
func (c *Conn) resolvePrompt(id string, stay bool) bool {
	c.mu.Lock()
	answer, ok := c.prompts[id]
	delete(c.prompts, id)
	c.mu.Unlock()

	if !ok {
		return false
	}
	answer <- stay
	return true
}

func (c *Conn) forgetPrompt(id string) {
	c.mu.Lock()
	delete(c.prompts, id)
	c.mu.Unlock()
}

func (c *Conn) send(msg ServerMessage) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteJSON(msg)
}

func (c *Conn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	wait := c.writeTimeout
	if wait <= 0 {
		wait = defaultWriteTimeout
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait))
}

// Close marks the tab gone and releases blocked prompts.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.ws.Close()
}
