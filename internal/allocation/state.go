package allocation

import (
	"github.com/elliotchance/orderedmap/v2"
)

// profileState is the per-profile record described in spec.md §3
// (PerProfileState). It is only ever touched while AllocationManager's
// single mutex is held; it has no lock of its own (spec.md §5).
type profileState struct {
	// target is the current desired executor count for this profile.
	target int
	// toAdd is the next ramp-up step size; doubled each step, reset to 1
	// when the backlog drains or the target is capped.
	toAdd int
	// pendingToRemove is the set of executor ids asked to die whose death
	// has not yet been confirmed via ExecutorRemoved.
	pendingToRemove map[string]struct{}
	// runningExecutorIds is the set of live executor ids tagged with this
	// profile.
	runningExecutorIds map[string]struct{}
	// localityAwareTaskCount is the number of pending tasks with a host
	// preference.
	localityAwareTaskCount int
	// hostToLocalTaskCount maps host -> count of pending tasks preferring
	// that host. An orderedmap iterates hosts in first-insertion order; the
	// copies handed to ClusterClient.RequestTotalExecutors and Snapshot are
	// plain Go maps and carry no order.
	hostToLocalTaskCount *orderedmap.OrderedMap[string, int]
}

func newProfileState(initialTarget int) *profileState {
	return &profileState{
		target:               initialTarget,
		toAdd:                1,
		pendingToRemove:      make(map[string]struct{}),
		runningExecutorIds:   make(map[string]struct{}),
		hostToLocalTaskCount: orderedmap.NewOrderedMap[string, int](),
	}
}

func (s *profileState) runningCount() int {
	return len(s.runningExecutorIds)
}

func (s *profileState) pendingToRemoveCount() int {
	return len(s.pendingToRemove)
}

func (s *profileState) addHostLocalTask(host string) {
	if host == "" {
		return
	}
	current, _ := s.hostToLocalTaskCount.Get(host)
	s.hostToLocalTaskCount.Set(host, current+1)
	s.localityAwareTaskCount++
}

func (s *profileState) removeHostLocalTask(host string) {
	if host == "" {
		return
	}
	current, ok := s.hostToLocalTaskCount.Get(host)
	if !ok {
		return
	}
	if current <= 1 {
		s.hostToLocalTaskCount.Delete(host)
	} else {
		s.hostToLocalTaskCount.Set(host, current-1)
	}
	if s.localityAwareTaskCount > 0 {
		s.localityAwareTaskCount--
	}
}

// snapshotHostToLocalTaskCount returns a plain map copy for callers outside
// the lock (ClusterClient, test snapshots) that shouldn't hold a reference
// into live state.
func (s *profileState) snapshotHostToLocalTaskCount() map[string]int {
	out := make(map[string]int, s.hostToLocalTaskCount.Len())
	for el := s.hostToLocalTaskCount.Front(); el != nil; el = el.Next() {
		out[el.Key] = el.Value
	}
	return out
}
