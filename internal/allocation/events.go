package allocation

import "time"

// EventKind discriminates the scheduler events EventIntake accepts
// (spec.md §4.5).
type EventKind int

const (
	EventStageSubmitted EventKind = iota
	EventStageCompleted
	EventTaskStart
	EventTaskEnd
	EventSpeculativeTaskSubmitted
	EventExecutorAdded
	EventExecutorRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventStageSubmitted:
		return "StageSubmitted"
	case EventStageCompleted:
		return "StageCompleted"
	case EventTaskStart:
		return "TaskStart"
	case EventTaskEnd:
		return "TaskEnd"
	case EventSpeculativeTaskSubmitted:
		return "SpeculativeTaskSubmitted"
	case EventExecutorAdded:
		return "ExecutorAdded"
	case EventExecutorRemoved:
		return "ExecutorRemoved"
	default:
		return "Unknown"
	}
}

// TaskEndReason discriminates why a task ended. Per the conservative policy
// recorded in DESIGN.md (spec.md §9), every non-Success reason is treated
// as resubmittable: the task index goes back into its stage attempt's
// pending set. Distinct named reasons are retained even though they
// currently all behave the same way, so that distinction can be narrowed
// later without changing the event schema.
type TaskEndReason int

const (
	TaskSuccess TaskEndReason = iota
	TaskFailed
	TaskKilled
	TaskFetchFailed
	TaskExceptionFailure
	TaskLeaseExpired
)

// IsResubmittable reports whether a task ending with reason r should be
// treated as still pending (the conservative policy of spec.md §9).
func (r TaskEndReason) IsResubmittable() bool {
	return r != TaskSuccess
}

// Event is the normalised representation of an inbound scheduler event.
// Only the fields relevant to Kind are populated; the rest are zero.
type Event struct {
	Timestamp time.Time
	Kind      EventKind

	// StageSubmitted, StageCompleted, SpeculativeTaskSubmitted
	StageId   int
	AttemptId int
	ProfileId int
	// StageSubmitted
	TotalTasks int
	// TaskLocalityHints maps task index -> preferred hosts, recorded per
	// SPEC_FULL.md §12.3.
	TaskLocalityHints map[int][]string

	// TaskStart, TaskEnd
	TaskIndex  int
	ExecutorId string
	EndReason  TaskEndReason

	// ExecutorAdded, ExecutorRemoved
	Host string
}
