package allocation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/tgravescs/dynexec/internal/allocatorcontext"
)

func TestEventIntakePostAppliesBeforeReturning(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	cfg := baseCfg()
	m, registry, _ := newTestManager(cfg, clk)
	intake := NewEventIntake(m)
	ctx := allocatorcontext.Background()

	go intake.Run(ctx)
	defer intake.Stop()

	intake.Post(ctx, Event{Kind: EventExecutorAdded, ExecutorId: "e0", Host: "h", ProfileId: registry.GetDefault()})

	// Post already waited for HandleEvent to run, so the effect is visible
	// immediately with no further synchronisation.
	assert.Equal(t, 1, m.Snapshot().ExecutorCount)
}

func TestEventIntakeAppliesConcurrentPosts(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	cfg := baseCfg()
	m, registry, _ := newTestManager(cfg, clk)
	intake := NewEventIntake(m)
	ctx := allocatorcontext.Background()

	go intake.Run(ctx)
	defer intake.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		id := i
		go func() {
			defer wg.Done()
			intake.Post(ctx, Event{
				Kind: EventExecutorAdded,
				ExecutorId: string(rune('a' + id)), Host: "h", ProfileId: registry.GetDefault(),
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, m.Snapshot().ExecutorCount)
}

func TestEventIntakeStopEndsRun(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	cfg := baseCfg()
	m, _, _ := newTestManager(cfg, clk)
	intake := NewEventIntake(m)
	ctx := allocatorcontext.Background()

	done := make(chan struct{})
	go func() {
		intake.Run(ctx)
		close(done)
	}()

	intake.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "Run did not exit after Stop")
	}
}
