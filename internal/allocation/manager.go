// Package allocation implements the dynamic executor allocation controller:
// the AllocationManager, ExecutorMonitor, ResourceProfileRegistry,
// ClusterClient contract and EventIntake described in spec.md. The whole
// package is grounded on internal/scheduler in the teacher codebase — a
// single clock-driven control loop, guarded by one coarse mutex, that
// stages per-profile updates and applies them to an external collaborator
// outside the lock.
package allocation

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/maps"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/tgravescs/dynexec/internal/allocatorcontext"
	"github.com/tgravescs/dynexec/internal/allocatorerrors"
	"github.com/tgravescs/dynexec/internal/config"
)

// removalReason distinguishes why removeExecutors was asked to remove an
// executor. Only ReasonIdleTimeout leaves target unchanged; ReasonNotNeeded
// decrements it (spec.md §4.1, "removeExecutors").
type removalReason int

const (
	ReasonIdleTimeout removalReason = iota
	ReasonNotNeeded
)

// AllocationManager owns per-profile target/pending state, runs the
// periodic schedule tick, and serves as the event sink for EventIntake
// (spec.md §4.1). mu is the single coarse mutex spec.md §5 calls for,
// guarding both the per-profile state table and the ExecutorMonitor.
type AllocationManager struct {
	mu sync.Mutex
	// rpcMu serialises calls into the ClusterClient with reset(), so reset
	// waits for any in-flight RPC to finish before clearing state
	// (spec.md §9, Open Question).
	rpcMu sync.Mutex
	// resyncPending is set when a RequestTotalExecutors call fails, so the
	// next tick declares totals again even if nothing else changed.
	resyncPending bool

	cfg      config.Configuration
	clk      clock.Clock
	registry *ResourceProfileRegistry
	monitor  *ExecutorMonitor
	client   ClusterClient
	metrics  *metrics

	profiles map[int]*profileState
	stages   map[stageKey]*stageAttempt
	addTime  time.Time // zero value is the NOT_SET sentinel.

	stopCh chan struct{}
	wg     sync.WaitGroup
	intake *EventIntake
}

// NewAllocationManager constructs a manager. Call Start to validate cfg,
// seed the default profile's target, and begin ticking.
func NewAllocationManager(
	cfg config.Configuration,
	registry *ResourceProfileRegistry,
	clk clock.Clock,
	client ClusterClient,
	metricsRegisterer prometheus.Registerer,
) *AllocationManager {
	return &AllocationManager{
		cfg:      cfg,
		clk:      clk,
		registry: registry,
		monitor:  NewExecutorMonitor(clk),
		client:   client,
		metrics:  newMetrics(metricsRegisterer),
		profiles: make(map[int]*profileState),
		stages:   make(map[stageKey]*stageAttempt),
		stopCh:   make(chan struct{}),
	}
}

// Start validates cfg, initialises the default profile's target, registers
// with the event intake, and arms the periodic tick (spec.md §4.1). It
// fails fast with a descriptive error if cfg's bounds are inconsistent.
func (m *AllocationManager) Start(ctx *allocatorcontext.Context) error {
	if err := m.cfg.Validate(); err != nil {
		return fmt.Errorf("cannot start allocation manager: %w", err)
	}

	m.mu.Lock()
	defaultId := m.registry.GetDefault()
	m.profiles[defaultId] = newProfileState(m.cfg.InitialExecutors)
	m.addTime = time.Time{}
	m.mu.Unlock()

	m.intake = NewEventIntake(m)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.intake.Run(ctx)
	}()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.scheduleLoop(ctx)
	}()

	ctx.Log.Info("allocation manager started")
	return nil
}

// Stop cancels the tick and detaches from the event intake. It does not
// itself kill executors.
func (m *AllocationManager) Stop() {
	close(m.stopCh)
	m.intake.Stop()
	m.wg.Wait()
}

// Reset restores every profile to its post-Start state: target =
// InitialExecutors for the default profile or 0 for every other profile,
// toAdd = 1, pendingToRemove cleared, all running executors forgotten, and
// addTime cleared. It waits for any in-flight ClusterClient RPC to
// complete first (spec.md §9, Open Question).
func (m *AllocationManager) Reset() {
	m.rpcMu.Lock()
	defer m.rpcMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	defaultId := m.registry.GetDefault()
	for profileId := range m.profiles {
		target := 0
		if profileId == defaultId {
			target = m.cfg.InitialExecutors
		}
		m.profiles[profileId] = newProfileState(target)
	}
	m.monitor = NewExecutorMonitor(m.clk)
	m.stages = make(map[stageKey]*stageAttempt)
	m.addTime = time.Time{}
}

// Intake returns the EventIntake that feeds this manager, so callers can
// Post events once Start has run.
func (m *AllocationManager) Intake() *EventIntake {
	return m.intake
}

// RequestTotalExecutors returns the current target for profileId.
func (m *AllocationManager) RequestTotalExecutors(profileId int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.profiles[profileId]
	if !ok {
		return 0, false
	}
	return st.target, true
}

func (m *AllocationManager) ensureProfileLocked(profileId int) *profileState {
	st, ok := m.profiles[profileId]
	if !ok {
		st = newProfileState(0)
		m.profiles[profileId] = st
	}
	return st
}

// onSchedulerBacklogged arms the backlog timer if it is not already armed.
// Idempotent: re-entry without an intervening onSchedulerQueueEmpty leaves
// addTime unchanged (spec.md §4.1, §8).
func (m *AllocationManager) onSchedulerBackloggedLocked() {
	if m.addTime.IsZero() {
		m.addTime = m.clk.Now().Add(m.cfg.SchedulerBacklogTimeout)
	}
}

// onSchedulerQueueEmpty disarms the backlog timer and resets every
// profile's toAdd to 1.
func (m *AllocationManager) onSchedulerQueueEmptyLocked() {
	m.addTime = time.Time{}
	for _, st := range m.profiles {
		st.toAdd = 1
	}
}

// scheduleLoop runs the periodic tick at cfg.TickInterval until Stop is
// called.
func (m *AllocationManager) scheduleLoop(ctx *allocatorcontext.Context) {
	ticker := m.clk.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C():
			start := m.clk.Now()
			if err := m.tick(ctx); err != nil {
				ctx.Log.WithError(err).Warn("error running allocation tick")
			}
			if m.metrics != nil {
				m.metrics.tickLatency.Observe(m.clk.Now().Sub(start).Seconds())
			}
		}
	}
}

// tick is the periodic schedule described in spec.md §4.1. State mutation
// happens under mu; the resulting RequestTotalExecutors/KillExecutors calls
// are staged into local variables and issued after mu is released, so a
// slow ClusterClient never blocks event dispatch (spec.md §5).
func (m *AllocationManager) tick(ctx *allocatorcontext.Context) error {
	now := m.clk.Now()

	m.mu.Lock()

	profileIds := maps.Keys(m.profiles)
	maxNeededByProfile := make(map[int]int, len(profileIds))
	for _, profileId := range profileIds {
		maxNeededByProfile[profileId] = m.computeMaxNeededLocked(profileId)
	}

	changed := m.updateAndSyncNumExecutorsTargetLocked(now, maxNeededByProfile)

	idleIds := m.monitor.TimedOutExecutors(now, m.cfg.ExecutorIdleTimeout, m.cfg.CachedExecutorIdleTimeout)
	removed := m.removeExecutorsLocked(idleIds, ReasonIdleTimeout)

	needsRequest := changed || len(removed) > 0 || m.resyncPending
	m.resyncPending = false
	targets := make(map[int]int, len(profileIds))
	localityAwareTasks := make(map[int]int, len(profileIds))
	hostToLocal := make(map[int]map[string]int, len(profileIds))
	for _, profileId := range profileIds {
		st := m.profiles[profileId]
		targets[profileId] = st.target
		localityAwareTasks[profileId] = st.localityAwareTaskCount
		hostToLocal[profileId] = st.snapshotHostToLocalTaskCount()
		if m.metrics != nil {
			label := fmt.Sprintf("%d", profileId)
			m.metrics.target.WithLabelValues(label).Set(float64(st.target))
			m.metrics.pendingToRemove.WithLabelValues(label).Set(float64(st.pendingToRemoveCount()))
			m.metrics.runningCount.WithLabelValues(label).Set(float64(st.runningCount()))
			m.metrics.maxNeeded.WithLabelValues(label).Set(float64(maxNeededByProfile[profileId]))
		}
	}

	m.mu.Unlock()

	if !needsRequest {
		return nil
	}

	m.rpcMu.Lock()
	defer m.rpcMu.Unlock()

	if accepted, err := m.client.RequestTotalExecutors(ctx, targets, localityAwareTasks, hostToLocal); err != nil || !accepted {
		ctx.Log.WithError(err).Warn("cluster client rejected requestTotalExecutors; will retry next tick")
		m.mu.Lock()
		m.resyncPending = true
		m.mu.Unlock()
	}
	if len(removed) > 0 {
		if _, err := m.client.KillExecutors(ctx, removed, false, false, false); err != nil {
			ctx.Log.WithError(err).Warn("cluster client rejected killExecutors; will retry next tick")
			// Un-mark the batch so the next tick's idle scan selects it again.
			m.mu.Lock()
			for _, st := range m.profiles {
				for _, id := range removed {
					delete(st.pendingToRemove, id)
				}
			}
			m.mu.Unlock()
		}
	}
	return nil
}

// computeMaxNeededLocked implements spec.md §4.1 step 1: the number of
// executors needed to keep up with this profile's backlog, generalized
// per-profile per SPEC_FULL.md §12.2.
func (m *AllocationManager) computeMaxNeededLocked(profileId int) int {
	profile, ok := m.registry.Lookup(profileId)
	if !ok {
		return 0
	}
	totalNeed := 0
	for _, attempt := range m.stages {
		if attempt.ProfileId != profileId {
			continue
		}
		if !attempt.zombie {
			totalNeed += len(attempt.pendingTaskIndices)
		}
		totalNeed += len(attempt.runningTaskIndices)
		totalNeed += attempt.pendingSpeculative
	}
	tasksPerExecutor := profile.TasksPerExecutor()
	return ceilDiv(float64(totalNeed)*m.cfg.ExecutorAllocationRatio, float64(tasksPerExecutor))
}

// maxNeeded is the locked read used by Snapshot, which already holds mu.
// st is unused: the value depends only on profileId and the known stage
// attempts.
func (m *AllocationManager) maxNeeded(profileId int, st *profileState) int {
	_ = st
	return m.computeMaxNeededLocked(profileId)
}

func ceilDiv(numerator, denominator float64) int {
	if denominator <= 0 {
		denominator = 1
	}
	n := numerator / denominator
	i := int(n)
	if float64(i) < n {
		i++
	}
	return i
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// updateAndSyncNumExecutorsTargetLocked implements spec.md §4.1 step 2.
// Returns true if any profile's target changed, so the caller knows
// whether to re-declare totals to the ClusterClient.
func (m *AllocationManager) updateAndSyncNumExecutorsTargetLocked(now time.Time, maxNeededByProfile map[int]int) bool {
	changed := false

	for profileId, st := range m.profiles {
		maxNeeded := maxNeededByProfile[profileId]
		if st.target > maxNeeded {
			newTarget := clampInt(maxNeeded, m.cfg.MinExecutors, m.cfg.MaxExecutors)
			if newTarget != st.target {
				st.target = newTarget
				st.toAdd = 1
				changed = true
			}
		}
	}

	if !m.addTime.IsZero() && !now.Before(m.addTime) {
		for profileId := range m.profiles {
			if delta := m.addExecutorsToTargetLocked(maxNeededByProfile[profileId], profileId); delta > 0 {
				changed = true
			}
		}
		m.addTime = now.Add(m.cfg.SustainedSchedulerBacklogTimeout)
	}

	return changed
}

// addExecutorsToTargetLocked implements the exponential ramp-up of
// spec.md §4.1, "addExecutorsToTarget".
func (m *AllocationManager) addExecutorsToTargetLocked(maxNeeded int, profileId int) int {
	st := m.ensureProfileLocked(profileId)

	if st.target >= maxNeeded || st.target >= m.cfg.MaxExecutors {
		st.toAdd = 1
		return 0
	}

	delta := minInt(st.toAdd, minInt(maxNeeded-st.target, m.cfg.MaxExecutors-st.target))
	st.target += delta
	if st.target == m.cfg.MaxExecutors || st.target == maxNeeded {
		st.toAdd = 1
	} else {
		st.toAdd *= 2
	}
	return delta
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// removeExecutorsLocked implements spec.md §4.1, "removeExecutors". It
// returns the subset of ids actually accepted for removal. Only
// ReasonNotNeeded decrements target; ReasonIdleTimeout (used by tick) does
// not, so the scheduler can ramp back up naturally (spec.md §8, "Idle
// removal does not shrink target").
func (m *AllocationManager) removeExecutorsLocked(ids []string, reason removalReason) []string {
	accepted := make([]string, 0, len(ids))
	for _, id := range ids {
		ex, ok := m.monitor.Get(id)
		if !ok {
			continue
		}
		st, ok := m.profiles[ex.ProfileId]
		if !ok {
			continue
		}
		if _, already := st.pendingToRemove[id]; already {
			continue
		}
		remaining := st.runningCount() - st.pendingToRemoveCount() - 1
		if remaining < m.cfg.MinExecutors {
			continue
		}
		st.pendingToRemove[id] = struct{}{}
		if reason == ReasonNotNeeded {
			st.target--
		}
		accepted = append(accepted, id)
	}
	return accepted
}

// HandleEvent applies a single inbound event to the manager's state,
// following the dispatch table of spec.md §4.5. It is called by
// EventIntake's single consumer goroutine, so handlers never need to worry
// about concurrent mutation of the same stage attempt or profile.
func (m *AllocationManager) HandleEvent(ctx *allocatorcontext.Context, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case EventStageSubmitted:
		m.onStageSubmittedLocked(ctx, ev)
	case EventStageCompleted:
		m.onStageCompletedLocked(ctx, ev)
	case EventTaskStart:
		m.onTaskStartLocked(ctx, ev)
	case EventTaskEnd:
		m.onTaskEndLocked(ctx, ev)
	case EventSpeculativeTaskSubmitted:
		m.onSpeculativeTaskSubmittedLocked(ctx, ev)
	case EventExecutorAdded:
		m.onExecutorAddedLocked(ctx, ev)
	case EventExecutorRemoved:
		m.onExecutorRemovedLocked(ctx, ev)
	default:
		ctx.Log.Warnf("ignoring event of unknown kind %v", ev.Kind)
	}
}

// dropUnknownProfile reports whether ev.ProfileId is not one the registry
// ever assigned. Per spec.md §7 category 4 such an event is a programmer
// error: it is dropped and logged at error level rather than silently
// vivifying a bogus profile that would then show up in every subsequent
// RequestTotalExecutors call.
func (m *AllocationManager) dropUnknownProfile(ctx *allocatorcontext.Context, ev Event) bool {
	if _, ok := m.registry.Lookup(ev.ProfileId); ok {
		return false
	}
	ctx.Log.WithError(&allocatorerrors.ProfileNotFoundError{ProfileId: ev.ProfileId}).
		Errorf("dropping %s event for unknown resource profile", ev.Kind)
	return true
}

// logInconsistent records an event the controller could not fully reconcile
// against known state (spec.md §7 category 3): tolerated, not dropped.
func (m *AllocationManager) logInconsistent(ctx *allocatorcontext.Context, kind, detail string) {
	ctx.Log.WithError(&allocatorerrors.InconsistentEventError{Kind: kind, Detail: detail}).
		Debug("tolerating inconsistent event")
}

func (m *AllocationManager) onStageSubmittedLocked(ctx *allocatorcontext.Context, ev Event) {
	if m.dropUnknownProfile(ctx, ev) {
		return
	}
	attempt := newStageAttempt(ev.StageId, ev.AttemptId, ev.ProfileId, ev.TotalTasks, ev.TaskLocalityHints)
	m.stages[attempt.key()] = attempt

	st := m.ensureProfileLocked(ev.ProfileId)
	for _, hosts := range ev.TaskLocalityHints {
		for _, host := range hosts {
			st.addHostLocalTask(host)
		}
	}
	m.syncBacklogTimerLocked()
}

func (m *AllocationManager) onStageCompletedLocked(ctx *allocatorcontext.Context, ev Event) {
	key := stageKey{StageId: ev.StageId, AttemptId: ev.AttemptId}
	attempt, ok := m.stages[key]
	if !ok {
		m.logInconsistent(ctx, "StageCompleted", fmt.Sprintf("stage %d attempt %d not known", ev.StageId, ev.AttemptId))
		return
	}
	attempt.zombie = true

	// Tasks that never started no longer count toward locality preference
	// (spec.md §4.1 step 1's example 6 — a completed stage's unstarted
	// tasks are abandoned, not counted as backlog).
	if st, ok2 := m.profiles[attempt.ProfileId]; ok2 {
		for idx := range attempt.pendingTaskIndices {
			for _, host := range attempt.taskHosts[idx] {
				st.removeHostLocalTask(host)
			}
		}
	}
	attempt.pendingTaskIndices = make(map[int]struct{})

	if attempt.isTerminated() {
		delete(m.stages, key)
	}
	m.syncBacklogTimerLocked()
}

func (m *AllocationManager) onTaskStartLocked(ctx *allocatorcontext.Context, ev Event) {
	key := stageKey{StageId: ev.StageId, AttemptId: ev.AttemptId}
	if attempt, ok := m.stages[key]; ok {
		if attempt.startTask(ev.TaskIndex) {
			if st, ok2 := m.profiles[attempt.ProfileId]; ok2 {
				for _, host := range attempt.taskHosts[ev.TaskIndex] {
					st.removeHostLocalTask(host)
				}
			}
		} else {
			m.logInconsistent(ctx, "TaskStart", fmt.Sprintf("task %d of stage %d attempt %d was not pending", ev.TaskIndex, ev.StageId, ev.AttemptId))
		}
	} else {
		m.logInconsistent(ctx, "TaskStart", fmt.Sprintf("stage %d attempt %d not known", ev.StageId, ev.AttemptId))
	}
	if !m.monitor.TaskStart(ev.ExecutorId) {
		m.logInconsistent(ctx, "TaskStart", fmt.Sprintf("executor %s not known", ev.ExecutorId))
	}
	m.syncBacklogTimerLocked()
}

func (m *AllocationManager) onTaskEndLocked(ctx *allocatorcontext.Context, ev Event) {
	key := stageKey{StageId: ev.StageId, AttemptId: ev.AttemptId}
	if attempt, ok := m.stages[key]; ok {
		resubmit := ev.EndReason.IsResubmittable()
		if attempt.endTask(ev.TaskIndex, resubmit) {
			if resubmit {
				if st, ok2 := m.profiles[attempt.ProfileId]; ok2 {
					for _, host := range attempt.taskHosts[ev.TaskIndex] {
						st.addHostLocalTask(host)
					}
				}
			}
			if attempt.pendingSpeculative > 0 {
				attempt.pendingSpeculative--
			}
		} else {
			m.logInconsistent(ctx, "TaskEnd", fmt.Sprintf("task %d of stage %d attempt %d was not running", ev.TaskIndex, ev.StageId, ev.AttemptId))
		}
		if attempt.zombie && attempt.isTerminated() {
			delete(m.stages, key)
		}
	} else {
		m.logInconsistent(ctx, "TaskEnd", fmt.Sprintf("stage %d attempt %d not known", ev.StageId, ev.AttemptId))
	}
	if !m.monitor.TaskEnd(ev.ExecutorId) {
		m.logInconsistent(ctx, "TaskEnd", fmt.Sprintf("executor %s not known", ev.ExecutorId))
	}
	m.syncBacklogTimerLocked()
}

func (m *AllocationManager) onSpeculativeTaskSubmittedLocked(ctx *allocatorcontext.Context, ev Event) {
	key := stageKey{StageId: ev.StageId, AttemptId: ev.AttemptId}
	if attempt, ok := m.stages[key]; ok {
		attempt.pendingSpeculative++
	} else {
		m.logInconsistent(ctx, "SpeculativeTaskSubmitted", fmt.Sprintf("stage %d attempt %d not known", ev.StageId, ev.AttemptId))
	}
	m.syncBacklogTimerLocked()
}

func (m *AllocationManager) onExecutorAddedLocked(ctx *allocatorcontext.Context, ev Event) {
	if m.dropUnknownProfile(ctx, ev) {
		return
	}
	if !m.monitor.Add(ev.ExecutorId, ev.Host, ev.ProfileId) {
		m.logInconsistent(ctx, "ExecutorAdded", fmt.Sprintf("executor %s already known", ev.ExecutorId))
		return
	}
	st := m.ensureProfileLocked(ev.ProfileId)
	st.runningExecutorIds[ev.ExecutorId] = struct{}{}
	delete(st.pendingToRemove, ev.ExecutorId)
}

func (m *AllocationManager) onExecutorRemovedLocked(ctx *allocatorcontext.Context, ev Event) {
	profileId, ok := m.monitor.Remove(ev.ExecutorId)
	if !ok {
		m.logInconsistent(ctx, "ExecutorRemoved", fmt.Sprintf("executor %s not known", ev.ExecutorId))
		return
	}
	if st, ok2 := m.profiles[profileId]; ok2 {
		delete(st.runningExecutorIds, ev.ExecutorId)
		delete(st.pendingToRemove, ev.ExecutorId)
	}
}

// syncBacklogTimerLocked arms or disarms the backlog timer based on whether
// any profile currently has unstarted or speculative work outstanding
// (spec.md §4.1, §8 — "addTime == NOT_SET iff no pending task exists across
// all known attempts").
func (m *AllocationManager) syncBacklogTimerLocked() {
	total := 0
	for _, attempt := range m.stages {
		if !attempt.zombie {
			total += len(attempt.pendingTaskIndices)
		}
		total += attempt.pendingSpeculative
	}
	if total > 0 {
		m.onSchedulerBackloggedLocked()
	} else {
		m.onSchedulerQueueEmptyLocked()
	}
}

// RemoveExecutorsNotNeeded is a direct entry point (not reached from tick)
// for callers that want to shrink a profile's target and ask the cluster
// client to kill specific executors in the same step, exercising the
// ReasonNotNeeded path of removeExecutorsLocked that spec.md §8's law
// ("killing by surplus decreases target") describes.
func (m *AllocationManager) RemoveExecutorsNotNeeded(ctx *allocatorcontext.Context, ids []string) ([]string, error) {
	m.mu.Lock()
	accepted := m.removeExecutorsLocked(ids, ReasonNotNeeded)
	m.mu.Unlock()

	if len(accepted) == 0 {
		return nil, nil
	}

	m.rpcMu.Lock()
	defer m.rpcMu.Unlock()
	killed, err := m.client.KillExecutors(ctx, accepted, false, false, false)
	if err != nil {
		return nil, allocatorerrors.NewClusterClientError("killExecutors", true, err)
	}
	return killed, nil
}
