package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	testingclock "k8s.io/utils/clock/testing"
)

func TestMonitorAddIsIdempotent(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	m := NewExecutorMonitor(clk)

	assert.True(t, m.Add("e1", "host1", 0))
	assert.False(t, m.Add("e1", "host1", 0))
	assert.Equal(t, 1, m.ExecutorCount())
}

func TestMonitorTaskStartEndTracksIdleTimestamp(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	m := NewExecutorMonitor(clk)
	m.Add("e1", "host1", 0)

	ex, _ := m.Get("e1")
	addedAt := ex.LastTaskFinishedAt

	clk.Step(time.Second)
	assert.True(t, m.TaskStart("e1"))
	assert.False(t, ex.IsIdle())

	clk.Step(5 * time.Second)
	assert.True(t, m.TaskEnd("e1"))
	assert.True(t, ex.IsIdle())
	assert.True(t, ex.LastTaskFinishedAt.After(addedAt))
}

func TestMonitorTaskEventsToleratesUnknownExecutor(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	m := NewExecutorMonitor(clk)

	assert.False(t, m.TaskStart("ghost"))
	assert.False(t, m.TaskEnd("ghost"))
}

func TestTimedOutExecutorsOrdersByIdleTimeThenId(t *testing.T) {
	start := time.Now()
	clk := testingclock.NewFakeClock(start)
	m := NewExecutorMonitor(clk)

	m.Add("b", "host1", 0)
	clk.Step(time.Second)
	m.Add("a", "host1", 0)
	clk.Step(time.Second)
	m.Add("c", "host1", 0) // stays too young to time out

	clk.SetTime(start.Add(61 * time.Second))
	ids := m.TimedOutExecutors(clk.Now(), 60*time.Second, 0)
	assert.Equal(t, []string{"b", "a"}, ids)
}

func TestTimedOutExecutorsSkipsBusyExecutors(t *testing.T) {
	start := time.Now()
	clk := testingclock.NewFakeClock(start)
	m := NewExecutorMonitor(clk)

	m.Add("e1", "host1", 0)
	m.TaskStart("e1")

	clk.SetTime(start.Add(time.Hour))
	ids := m.TimedOutExecutors(clk.Now(), 60*time.Second, 0)
	assert.Empty(t, ids)
}

func TestTimedOutExecutorsRespectsCachedIdleTimeout(t *testing.T) {
	start := time.Now()
	clk := testingclock.NewFakeClock(start)
	m := NewExecutorMonitor(clk)

	m.Add("cached", "host1", 0)
	m.SetCachedBlocks("cached", 3)
	m.Add("plain", "host1", 0)

	clk.SetTime(start.Add(90 * time.Second))

	// cachedIdleTimeout <= 0 means caching executors are never reclaimed.
	ids := m.TimedOutExecutors(clk.Now(), 60*time.Second, 0)
	assert.Equal(t, []string{"plain"}, ids)

	// a positive cachedIdleTimeout that hasn't elapsed yet still protects it.
	ids = m.TimedOutExecutors(clk.Now(), 60*time.Second, 120*time.Second)
	assert.Equal(t, []string{"plain"}, ids)

	clk.SetTime(start.Add(130 * time.Second))
	ids = m.TimedOutExecutors(clk.Now(), 60*time.Second, 120*time.Second)
	assert.ElementsMatch(t, []string{"cached", "plain"}, ids)
}

func TestMonitorRemoveReturnsProfileId(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	m := NewExecutorMonitor(clk)
	m.Add("e1", "host1", 3)

	profileId, ok := m.Remove("e1")
	assert.True(t, ok)
	assert.Equal(t, 3, profileId)
	assert.Equal(t, 0, m.ExecutorCount())

	_, ok = m.Remove("e1")
	assert.False(t, ok)
}
