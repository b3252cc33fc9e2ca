package allocation

import (
	"time"

	"golang.org/x/exp/maps"
)

// ProfileSnapshot is the read-only view of one profile's state exposed by
// Snapshot, so tests can assert on invariants without reaching into private
// fields (spec.md §9 — "expose a read-only inspection snapshot").
type ProfileSnapshot struct {
	ProfileId              int
	Target                 int
	ToAdd                  int
	PendingToRemove        []string
	RunningExecutorIds     []string
	MaxNeeded              int
	LocalityAwareTaskCount int
	HostToLocalTaskCount   map[string]int
}

// State is the full observable state of the AllocationManager, listed in
// spec.md §6 ("Observable state for tests").
type State struct {
	AddTime        time.Time
	AddTimeIsSet   bool
	Profiles       map[int]ProfileSnapshot
	ExecutorCount  int
}

// Snapshot returns a deep, lock-free copy of the controller's current
// observable state.
func (m *AllocationManager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	profiles := make(map[int]ProfileSnapshot, len(m.profiles))
	for _, profileId := range maps.Keys(m.profiles) {
		st := m.profiles[profileId]
		profiles[profileId] = ProfileSnapshot{
			ProfileId:              profileId,
			Target:                 st.target,
			ToAdd:                  st.toAdd,
			PendingToRemove:        setKeys(st.pendingToRemove),
			RunningExecutorIds:     setKeys(st.runningExecutorIds),
			MaxNeeded:              m.maxNeeded(profileId, st),
			LocalityAwareTaskCount: st.localityAwareTaskCount,
			HostToLocalTaskCount:   st.snapshotHostToLocalTaskCount(),
		}
	}
	return State{
		AddTime:       m.addTime,
		AddTimeIsSet:  !m.addTime.IsZero(),
		Profiles:      profiles,
		ExecutorCount: m.monitor.ExecutorCount(),
	}
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
