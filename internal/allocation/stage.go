package allocation

// stageKey identifies a single stage attempt.
type stageKey struct {
	StageId   int
	AttemptId int
}

// stageAttempt is the scheduler-internal representation of one try at
// executing a stage (spec.md §3, StageAttempt). Tasks keep counting toward
// totalRunning even after the stage is marked complete, until each task
// emits a terminal event — a "zombie" attempt.
type stageAttempt struct {
	StageId            int
	AttemptId          int
	ProfileId          int
	TotalTasks         int
	pendingTaskIndices map[int]struct{}
	runningTaskIndices map[int]struct{}
	pendingSpeculative int
	zombie             bool
	// taskHosts records, for tasks submitted with a locality preference,
	// which host(s) they prefer, so the preference can be retracted from
	// the profile's hostToLocalTaskCount once the task starts or ends.
	taskHosts map[int][]string
}

func newStageAttempt(stageId, attemptId, profileId, totalTasks int, taskHosts map[int][]string) *stageAttempt {
	pending := make(map[int]struct{}, totalTasks)
	for i := 0; i < totalTasks; i++ {
		pending[i] = struct{}{}
	}
	if taskHosts == nil {
		taskHosts = make(map[int][]string)
	}
	return &stageAttempt{
		StageId:            stageId,
		AttemptId:          attemptId,
		ProfileId:          profileId,
		TotalTasks:         totalTasks,
		pendingTaskIndices: pending,
		runningTaskIndices: make(map[int]struct{}),
		taskHosts:          taskHosts,
	}
}

func (a *stageAttempt) key() stageKey {
	return stageKey{StageId: a.StageId, AttemptId: a.AttemptId}
}

// hasUnstartedTasks reports whether any task of this attempt has not yet
// started running.
func (a *stageAttempt) hasUnstartedTasks() bool {
	return len(a.pendingTaskIndices) > 0
}

// totalRunning is the number of tasks of this attempt currently running,
// counted whether or not the stage has been marked complete (zombie).
func (a *stageAttempt) totalRunning() int {
	return len(a.runningTaskIndices)
}

// isTerminated reports whether every task of this attempt has reached a
// terminal state (no longer pending or running). Per spec.md §3 the
// attempt is destroyed once this holds.
func (a *stageAttempt) isTerminated() bool {
	return len(a.pendingTaskIndices) == 0 && len(a.runningTaskIndices) == 0
}

func (a *stageAttempt) startTask(idx int) bool {
	if _, ok := a.pendingTaskIndices[idx]; !ok {
		return false
	}
	delete(a.pendingTaskIndices, idx)
	a.runningTaskIndices[idx] = struct{}{}
	return true
}

// endTask marks idx terminated. If resubmit is true (the conservative
// policy of spec.md §9 for non-Success task-end reasons), idx is put back
// into the pending set instead of being dropped entirely.
func (a *stageAttempt) endTask(idx int, resubmit bool) bool {
	if _, ok := a.runningTaskIndices[idx]; !ok {
		return false
	}
	delete(a.runningTaskIndices, idx)
	if resubmit {
		a.pendingTaskIndices[idx] = struct{}{}
	}
	return true
}
