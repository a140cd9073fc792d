package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

func TestFake_AdvanceFiresInOrder(t *testing.T) {
	c := NewFake(epoch)
	var fired []time.Duration

	c.AfterFunc(10*time.Minute, func() { fired = append(fired, c.Now().Sub(epoch)) })
	c.AfterFunc(5*time.Minute, func() { fired = append(fired, c.Now().Sub(epoch)) })
	c.AfterFunc(20*time.Minute, func() { fired = append(fired, c.Now().Sub(epoch)) })

	c.Advance(15 * time.Minute)
	assert.Equal(t, []time.Duration{5 * time.Minute, 10 * time.Minute}, fired)
	assert.Equal(t, epoch.Add(15*time.Minute), c.Now())
	assert.Equal(t, 1, c.Pending())

	c.Advance(5 * time.Minute)
	assert.Equal(t, []time.Duration{5 * time.Minute, 10 * time.Minute, 20 * time.Minute}, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFake_StopPreventsFire(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	timer := c.AfterFunc(time.Minute, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second Stop should report already stopped")

	c.Advance(time.Hour)
	assert.False(t, fired)
}

func TestFake_CallbackMaySchedule(t *testing.T) {
	c := NewFake(epoch)
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Minute, tick)
		}
	}
	c.AfterFunc(time.Minute, tick)

	c.Advance(10 * time.Minute)
	assert.Equal(t, 3, count)
}

func TestFake_ConcurrentAdvanceWhileCallbackBlocks(t *testing.T) {
	c := NewFake(epoch)
	release := make(chan struct{})
	entered := make(chan struct{})
	secondFiredAt := time.Time{}

	c.AfterFunc(time.Minute, func() {
		close(entered)
		<-release
	})
	c.AfterFunc(3*time.Minute, func() { secondFiredAt = c.Now() })

	done := make(chan struct{})
	go func() {
		c.Advance(time.Minute)
		close(done)
	}()

	<-entered
	c.Advance(2 * time.Minute)
	assert.Equal(t, epoch.Add(3*time.Minute), secondFiredAt)

	close(release)
	<-done
	assert.Equal(t, epoch.Add(3*time.Minute), c.Now(), "clock must not move backwards")
}

func TestFake_NextDeadline(t *testing.T) {
	c := NewFake(epoch)
	_, ok := c.NextDeadline()
	require.False(t, ok)

	c.AfterFunc(7*time.Minute, func() {})
	c.AfterFunc(2*time.Minute, func() {})
	next, ok := c.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, epoch.Add(2*time.Minute), next)
}

func TestReal_AfterFuncStops(t *testing.T) {
	timer := Real{}.AfterFunc(time.Hour, func() { t.Error("should not fire") })
	assert.True(t, timer.Stop())
}
