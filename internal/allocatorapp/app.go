// Package allocatorapp wires the allocation controller into a runnable
// process: signal handling and a demo event source, grounded on
// internal/common/app and internal/scheduler's schedulerapp.go in the
// teacher codebase.
package allocatorapp

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/tgravescs/dynexec/internal/allocation"
	"github.com/tgravescs/dynexec/internal/allocatorcontext"
	"github.com/tgravescs/dynexec/internal/config"
)

// CreateContextWithShutdown returns a context cancelled on SIGINT/SIGTERM.
func CreateContextWithShutdown() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}

// Run sets up an AllocationManager against a FakeClusterClient and a demo
// workload generator, and runs it until a shutdown signal is received.
// Wiring a real ClusterClient (talking to an actual cluster manager over
// the network) and standing up an HTTP /metrics exporter are both out of
// scope; prometheus.DefaultRegisterer is wired so an embedder can expose it
// however it likes.
func Run(cfg config.Configuration) error {
	ctx := allocatorcontext.New(CreateContextWithShutdown(), log.NewEntry(log.StandardLogger()))
	g, goctx := errgroup.WithContext(ctx)
	allocCtx := allocatorcontext.New(goctx, ctx.Log)

	registry := allocation.NewResourceProfileRegistry(cfg.ExecutorCores, cfg.TaskCPUs)
	client := allocation.NewFakeClusterClient()
	manager := allocation.NewAllocationManager(cfg, registry, clock.RealClock{}, client, prometheus.DefaultRegisterer)

	if err := manager.Start(allocCtx); err != nil {
		return err
	}

	g.Go(func() error {
		<-goctx.Done()
		manager.Stop()
		return nil
	})

	g.Go(func() error {
		runDemoWorkload(allocCtx, manager, registry.GetDefault())
		return nil
	})

	allocCtx.Log.Info("allocation controller started")
	return g.Wait()
}

// runDemoWorkload feeds a synthetic, ever-growing backlog into the
// controller so its ramp-up and idle-removal logic has something to do when
// run outside of a test. It stands in for a real scheduler event source,
// which is out of scope (spec.md's Non-goals).
func runDemoWorkload(ctx *allocatorcontext.Context, manager *allocation.AllocationManager, profileId int) {
	intake := manager.Intake()
	stageId := 0
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stageId++
			executorId := fmt.Sprintf("demo-%s", uuid.NewString())
			intake.Post(ctx, allocation.Event{
				Kind: allocation.EventExecutorAdded, ExecutorId: executorId, Host: "demo-host", ProfileId: profileId,
			})
			intake.Post(ctx, allocation.Event{
				Kind: allocation.EventStageSubmitted, StageId: stageId, AttemptId: 0, ProfileId: profileId, TotalTasks: 4,
			})
		}
	}
}
