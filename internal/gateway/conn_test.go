package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SoarinFerret/IdleWarden/internal/auth"
	"github.com/SoarinFerret/IdleWarden/internal/logging"
	"github.com/SoarinFerret/IdleWarden/internal/monitor"
)

func TestConn_SubscribeAndDispatch(t *testing.T) {
	c := newConn(nil, 0, logging.Discard())

	var got []monitor.EventKind
	unsub := c.Subscribe([]monitor.EventKind{monitor.KeyPress, monitor.Click}, func(k monitor.EventKind) {
		got = append(got, k)
	})

	assert.Equal(t, 1, c.dispatch(monitor.KeyPress))
	assert.Equal(t, 0, c.dispatch(monitor.Scroll))
	assert.Equal(t, 1, c.dispatch(monitor.Click))
	assert.Equal(t, []monitor.EventKind{monitor.KeyPress, monitor.Click}, got)

	unsub()
	unsub()
	assert.Equal(t, 0, c.dispatch(monitor.KeyPress))
	assert.Len(t, got, 2)
}

func TestConn_ResolveUnknownPrompt(t *testing.T) {
	c := newConn(nil, 0, logging.Discard())
	assert.False(t, c.resolvePrompt("missing", true))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

	a := &Session{id: "a", identity: auth.Identity{Username: "amina"}, connectedAt: now.Add(time.Minute)}
	b := &Session{id: "b", identity: auth.Identity{Username: "bruno"}, connectedAt: now}
	c := &Session{id: "c", identity: auth.Identity{Username: "amina"}, connectedAt: now.Add(2 * time.Minute)}
	r.Add(a)
	r.Add(b)
	r.Add(c)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []*Session{b, a, c}, r.List())
	assert.Equal(t, []*Session{a, c}, r.ByUser("amina"))
	assert.Empty(t, r.ByUser("nobody"))

	got, ok := r.Get("b")
	assert.True(t, ok)
	assert.Same(t, b, got)

	r.Remove("b")
	_, ok = r.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())
}
