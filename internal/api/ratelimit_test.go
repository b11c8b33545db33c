package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowLimiterEnforcesBudget(t *testing.T) {
	now := time.Unix(1000, 0)
	l := newWindowLimiter(2, time.Minute, func() time.Time { return now })

	ok, _ := l.allow("a")
	assert.True(t, ok)
	ok, _ = l.allow("a")
	assert.True(t, ok)

	ok, retry := l.allow("a")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)
}

func TestWindowLimiterRollsOver(t *testing.T) {
	now := time.Unix(1000, 0)
	l := newWindowLimiter(1, time.Minute, func() time.Time { return now })

	ok, _ := l.allow("a")
	assert.True(t, ok)
	ok, _ = l.allow("a")
	assert.False(t, ok)

	now = now.Add(59 * time.Second)
	ok, retry := l.allow("a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, retry)

	now = now.Add(time.Second)
	ok, _ = l.allow("a")
	assert.True(t, ok)
}

func TestWindowLimiterIsolatesClients(t *testing.T) {
	l := newWindowLimiter(1, time.Minute, nil)

	ok, _ := l.allow("a")
	assert.True(t, ok)
	ok, _ = l.allow("b")
	assert.True(t, ok)
	ok, _ = l.allow("a")
	assert.False(t, ok)
}

func TestWindowLimiterSweepsStaleClients(t *testing.T) {
	now := time.Unix(1000, 0)
	l := newWindowLimiter(1, time.Minute, func() time.Time { return now })

	l.allow("stale")
	now = now.Add(2 * time.Minute)
	for i := 0; i < sweepEvery; i++ {
		l.allow("active")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "stale")
}
