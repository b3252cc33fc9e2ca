package allocation

import (
	"sort"
	"time"

	"k8s.io/apimachinery/pkg/util/clock"
)

// ExecutorMonitor tracks the live set of executors, their idle/busy state,
// and the idle timer for each (spec.md §4.2). It has no lock of its own:
// every method here is only ever called while AllocationManager's mutex is
// held (spec.md §5 — "the per-profile state table and the monitor...both
// are guarded by a single mutex").
type ExecutorMonitor struct {
	clock     clock.Clock
	executors map[string]*Executor
}

// NewExecutorMonitor constructs an empty monitor using clk for all timing
// decisions, so tests can inject a clock.FakeClock.
func NewExecutorMonitor(clk clock.Clock) *ExecutorMonitor {
	return &ExecutorMonitor{
		clock:     clk,
		executors: make(map[string]*Executor),
	}
}

// Add inserts a new executor. Re-adding an id that's already present is a
// no-op (ExecutorAdded is idempotent per spec.md §4.5).
func (m *ExecutorMonitor) Add(id, host string, profileId int) bool {
	if _, exists := m.executors[id]; exists {
		return false
	}
	m.executors[id] = &Executor{
		Id:                 id,
		Host:               host,
		ProfileId:          profileId,
		LastTaskFinishedAt: m.clock.Now(),
	}
	return true
}

// Remove erases an executor and returns its profile id, if it was known.
func (m *ExecutorMonitor) Remove(id string) (int, bool) {
	ex, ok := m.executors[id]
	if !ok {
		return 0, false
	}
	delete(m.executors, id)
	return ex.ProfileId, true
}

// Get returns the tracked executor, if any.
func (m *ExecutorMonitor) Get(id string) (*Executor, bool) {
	ex, ok := m.executors[id]
	return ex, ok
}

// TaskStart records a task starting on executor id. Unknown ids are
// tolerated (spec.md §5 — the manager must tolerate events referencing an
// executor that has already been removed).
func (m *ExecutorMonitor) TaskStart(id string) bool {
	ex, ok := m.executors[id]
	if !ok {
		return false
	}
	ex.RunningTasks++
	return true
}

// TaskEnd records a task ending on executor id. When the executor becomes
// idle (no running tasks), its last-finished timestamp is stamped so the
// idle timer starts counting from now.
func (m *ExecutorMonitor) TaskEnd(id string) bool {
	ex, ok := m.executors[id]
	if !ok {
		return false
	}
	if ex.RunningTasks > 0 {
		ex.RunningTasks--
	}
	if ex.RunningTasks == 0 {
		ex.LastTaskFinishedAt = m.clock.Now()
	}
	return true
}

// SetCachedBlocks updates the count of cached blocks pinned to executor id.
// No inbound event in spec.md §4.5 currently drives this (there is no
// BlockCached/BlockRemoved event in the core spec); it exists so the
// caching-aware idle timeout of SPEC_FULL.md §12.1 has something to read
// once such an event is added upstream.
func (m *ExecutorMonitor) SetCachedBlocks(id string, count int) bool {
	ex, ok := m.executors[id]
	if !ok {
		return false
	}
	ex.RunningCachedBlocks = count
	return true
}

// ExecutorCount returns the number of live executors.
func (m *ExecutorMonitor) ExecutorCount() int {
	return len(m.executors)
}

// TimedOutExecutors returns, in deterministic order (ascending
// LastTaskFinishedAt, ties broken by id), the ids of executors that are
// idle and have been for at least idleTimeout — or cachedIdleTimeout, if
// they hold cached blocks and cachedIdleTimeout is positive; a
// non-positive cachedIdleTimeout means "never remove a caching executor".
func (m *ExecutorMonitor) TimedOutExecutors(now time.Time, idleTimeout, cachedIdleTimeout time.Duration) []string {
	type candidate struct {
		id        string
		idleSince time.Time
	}
	var candidates []candidate
	for id, ex := range m.executors {
		if ex.RunningTasks != 0 {
			continue
		}
		threshold := idleTimeout
		if ex.RunningCachedBlocks > 0 {
			if cachedIdleTimeout <= 0 {
				continue
			}
			threshold = cachedIdleTimeout
		}
		if now.Sub(ex.LastTaskFinishedAt) >= threshold {
			candidates = append(candidates, candidate{id: id, idleSince: ex.LastTaskFinishedAt})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].idleSince.Equal(candidates[j].idleSince) {
			return candidates[i].idleSince.Before(candidates[j].idleSince)
		}
		return candidates[i].id < candidates[j].id
	})
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids
}
