package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewResourceProfileRegistrySeedsDefault(t *testing.T) {
	r := NewResourceProfileRegistry(4, 1)

	defaultId := r.GetDefault()
	assert.Equal(t, 0, defaultId)

	profile, ok := r.Lookup(defaultId)
	assert.True(t, ok)
	assert.Equal(t, 4, profile.Executor().Cores)
	assert.Equal(t, 1, profile.Task().CPUs)
	assert.Equal(t, 4, profile.TasksPerExecutor())
}

func TestGetOrCreateDeduplicatesByValue(t *testing.T) {
	r := NewResourceProfileRegistry(4, 1)

	a := r.GetOrCreate(ResourceProfile{
		executor: ExecutorResourceRequest{Cores: 8, MemoryMB: 1024},
		task:     TaskResourceRequest{CPUs: 2},
	})
	b := r.GetOrCreate(ResourceProfile{
		executor: ExecutorResourceRequest{Cores: 8, MemoryMB: 1024},
		task:     TaskResourceRequest{CPUs: 2},
	})
	assert.Equal(t, a, b)
	assert.NotEqual(t, r.GetDefault(), a)

	c := r.GetOrCreate(ResourceProfile{
		executor: ExecutorResourceRequest{Cores: 16, MemoryMB: 1024},
		task:     TaskResourceRequest{CPUs: 2},
	})
	assert.NotEqual(t, a, c)
}

func TestTasksPerExecutorFloorsAndFloorsAtOne(t *testing.T) {
	p := ResourceProfile{
		executor: ExecutorResourceRequest{Cores: 5},
		task:     TaskResourceRequest{CPUs: 2},
	}
	assert.Equal(t, 2, p.TasksPerExecutor())

	zero := ResourceProfile{
		executor: ExecutorResourceRequest{Cores: 1},
		task:     TaskResourceRequest{CPUs: 4},
	}
	assert.Equal(t, 1, zero.TasksPerExecutor())
}

func TestLookupUnknownIdFails(t *testing.T) {
	r := NewResourceProfileRegistry(1, 1)
	_, ok := r.Lookup(99)
	assert.False(t, ok)
}
