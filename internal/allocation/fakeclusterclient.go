package allocation

import (
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tgravescs/dynexec/internal/allocatorcontext"
	"github.com/tgravescs/dynexec/internal/allocatorerrors"
)

// FakeClusterClient is an in-memory ClusterClient used by cmd/allocator's
// demo wiring and by tests. It records the arguments of the most recent
// RequestTotalExecutors call and every id it kills; it always accepts
// RequestTotalExecutors and kills those requested ids marked active via
// AddActive (other ids are left out of the returned subset), unless
// FailNextRequest/FailNextKill has been set — in which case it returns a
// transient *allocatorerrors.ClusterClientError wrapping a grpc
// Unavailable status, the way a real gRPC-backed implementation's
// transient failures would surface (spec.md §7, category 2).
type FakeClusterClient struct {
	mu sync.Mutex

	LastTargets              map[int]int
	LastLocalityAwareTasks   map[int]int
	LastHostToLocalTaskCount map[int]map[string]int
	KilledIds                []string
	ActiveIds                map[string]bool

	FailNextRequest bool
	FailNextKill    bool
}

// NewFakeClusterClient returns an empty FakeClusterClient.
func NewFakeClusterClient() *FakeClusterClient {
	return &FakeClusterClient{
		ActiveIds: make(map[string]bool),
	}
}

func (f *FakeClusterClient) RequestTotalExecutors(
	_ *allocatorcontext.Context,
	targets map[int]int,
	localityAwareTasks map[int]int,
	hostToLocalTaskCount map[int]map[string]int,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailNextRequest {
		f.FailNextRequest = false
		return false, allocatorerrors.NewClusterClientError(
			"requestTotalExecutors", true, status.Error(codes.Unavailable, "cluster manager unreachable"))
	}
	f.LastTargets = copyIntMap(targets)
	f.LastLocalityAwareTasks = copyIntMap(localityAwareTasks)
	f.LastHostToLocalTaskCount = make(map[int]map[string]int, len(hostToLocalTaskCount))
	for profileId, hosts := range hostToLocalTaskCount {
		f.LastHostToLocalTaskCount[profileId] = copyStringIntMap(hosts)
	}
	return true, nil
}

func (f *FakeClusterClient) KillExecutors(_ *allocatorcontext.Context, ids []string, replace, force, countFailures bool) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailNextKill {
		f.FailNextKill = false
		return nil, allocatorerrors.NewClusterClientError(
			"killExecutors", true, status.Error(codes.Unavailable, "cluster manager unreachable"))
	}
	killed := make([]string, 0, len(ids))
	for _, id := range ids {
		if f.ActiveIds[id] {
			delete(f.ActiveIds, id)
			killed = append(killed, id)
		}
	}
	f.KilledIds = append(f.KilledIds, killed...)
	return killed, nil
}

func (f *FakeClusterClient) IsExecutorActive(_ *allocatorcontext.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ActiveIds[id], nil
}

// AddActive marks id as currently alive from the cluster manager's point
// of view, for use in tests.
func (f *FakeClusterClient) AddActive(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ActiveIds[id] = true
}

func copyIntMap(m map[int]int) map[int]int {
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
