package allocation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ExecutorResourceRequest is the resource bundle an executor of a given
// profile consumes: cores, memory in megabytes, and arbitrary named
// resources with counts (spec.md §3, ResourceProfile).
type ExecutorResourceRequest struct {
	Cores     int
	MemoryMB  int64
	Resources map[string]int64
}

// TaskResourceRequest is the resource bundle a single task of a given
// profile consumes.
type TaskResourceRequest struct {
	CPUs      int
	Resources map[string]int64
}

func (r ExecutorResourceRequest) key() string {
	return fmt.Sprintf("cores=%d,mem=%d,%s", r.Cores, r.MemoryMB, namedResourceKey(r.Resources))
}

func (r TaskResourceRequest) key() string {
	return fmt.Sprintf("cpus=%d,%s", r.CPUs, namedResourceKey(r.Resources))
}

func namedResourceKey(resources map[string]int64) string {
	if len(resources) == 0 {
		return ""
	}
	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "%s=%d,", name, resources[name])
	}
	return sb.String()
}

// ResourceProfile is immutable once created: a resource bundle an executor
// of this profile provides, and one a task of this profile consumes.
// Id 0 is always the default profile (spec.md §3).
type ResourceProfile struct {
	id       int
	executor ExecutorResourceRequest
	task     TaskResourceRequest
}

// Id returns this profile's registry-assigned id.
func (p ResourceProfile) Id() int { return p.id }

// Executor returns the executor resource requirements of this profile.
func (p ResourceProfile) Executor() ExecutorResourceRequest { return p.executor }

// Task returns the task resource requirements of this profile.
func (p ResourceProfile) Task() TaskResourceRequest { return p.task }

// TasksPerExecutor is floor(executorCores / taskCPUs), minimum 1, as used by
// maxNeeded in spec.md §4.1 step 1, generalized per-profile per SPEC_FULL.md
// §12.2.
func (p ResourceProfile) TasksPerExecutor() int {
	if p.task.CPUs <= 0 {
		return 1
	}
	n := p.executor.Cores / p.task.CPUs
	if n < 1 {
		return 1
	}
	return n
}

func (p ResourceProfile) key() string {
	return p.executor.key() + "|" + p.task.key()
}

// ResourceProfileRegistry assigns dense, monotonically increasing ids to
// resource profiles by insertion order. Profiles are value-equal by their
// (executor, task) requirement tuple; registering a duplicate returns the
// existing id (spec.md §4.3).
type ResourceProfileRegistry struct {
	mu       sync.Mutex
	profiles []ResourceProfile
	byKey    map[string]int
}

// NewResourceProfileRegistry creates a registry with the default profile
// (id 0) built from the supplied executor cores / task cpus, as configured
// via executor.cores and task.cpus (spec.md §6).
func NewResourceProfileRegistry(defaultExecutorCores int, defaultTaskCPUs int) *ResourceProfileRegistry {
	r := &ResourceProfileRegistry{
		byKey: make(map[string]int),
	}
	r.GetOrCreate(ResourceProfile{
		executor: ExecutorResourceRequest{Cores: defaultExecutorCores},
		task:     TaskResourceRequest{CPUs: defaultTaskCPUs},
	})
	return r
}

// GetOrCreate assigns an id to profile (ignoring any id already set on it)
// if an equal profile does not already exist, and returns the id to use.
func (r *ResourceProfileRegistry) GetOrCreate(profile ResourceProfile) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := profile.key()
	if id, ok := r.byKey[key]; ok {
		return id
	}
	id := len(r.profiles)
	profile.id = id
	r.profiles = append(r.profiles, profile)
	r.byKey[key] = id
	return id
}

// GetDefault returns the id of the default profile, which is always 0.
func (r *ResourceProfileRegistry) GetDefault() int {
	return 0
}

// Lookup returns the profile with the given id, if known.
func (r *ResourceProfileRegistry) Lookup(id int) (ResourceProfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || id >= len(r.profiles) {
		return ResourceProfile{}, false
	}
	return r.profiles[id], true
}

// Ids returns every known profile id in insertion order.
func (r *ResourceProfileRegistry) Ids() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int, len(r.profiles))
	for i := range r.profiles {
		ids[i] = i
	}
	return ids
}
