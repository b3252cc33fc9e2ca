package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStageAttemptSeedsPendingIndices(t *testing.T) {
	a := newStageAttempt(1, 0, 0, 3, nil)
	assert.True(t, a.hasUnstartedTasks())
	assert.Len(t, a.pendingTaskIndices, 3)
	assert.False(t, a.isTerminated())
}

func TestStartAndEndTaskMovesBetweenSets(t *testing.T) {
	a := newStageAttempt(1, 0, 0, 2, nil)

	assert.True(t, a.startTask(0))
	assert.False(t, a.startTask(0)) // already running
	assert.Equal(t, 1, a.totalRunning())
	assert.True(t, a.hasUnstartedTasks())

	assert.True(t, a.endTask(0, false))
	assert.False(t, a.endTask(0, false)) // not running anymore
	assert.Equal(t, 0, a.totalRunning())
}

func TestEndTaskResubmitsOnFailure(t *testing.T) {
	a := newStageAttempt(1, 0, 0, 1, nil)
	a.startTask(0)
	a.endTask(0, true)

	assert.True(t, a.hasUnstartedTasks())
	assert.Equal(t, 0, a.totalRunning())
	assert.False(t, a.isTerminated())
}

func TestIsTerminatedOnceAllTasksSettle(t *testing.T) {
	a := newStageAttempt(1, 0, 0, 2, nil)
	a.startTask(0)
	a.startTask(1)
	a.endTask(0, false)
	assert.False(t, a.isTerminated())
	a.endTask(1, false)
	assert.True(t, a.isTerminated())
}

func TestTaskEndReasonIsResubmittable(t *testing.T) {
	assert.False(t, TaskSuccess.IsResubmittable())
	assert.True(t, TaskFailed.IsResubmittable())
	assert.True(t, TaskKilled.IsResubmittable())
	assert.True(t, TaskFetchFailed.IsResubmittable())
	assert.True(t, TaskExceptionFailure.IsResubmittable())
	assert.True(t, TaskLeaseExpired.IsResubmittable())
}
