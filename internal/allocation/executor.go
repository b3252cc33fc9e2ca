package allocation

import "time"

// Executor is a worker process the cluster manager has granted the job.
// Created on ExecutorAdded, destroyed on ExecutorRemoved (spec.md §3).
type Executor struct {
	Id                  string
	Host                string
	ProfileId           int
	LastTaskFinishedAt  time.Time
	RunningTasks        int
	RunningCachedBlocks int
}

// IsIdle reports whether the executor is eligible to be considered idle:
// no running tasks, and (per the caching-aware timeout of SPEC_FULL.md
// §12.1) no cached blocks pinned either.
func (e *Executor) IsIdle() bool {
	return e.RunningTasks == 0 && e.RunningCachedBlocks == 0
}
