package allocation

import (
	"github.com/tgravescs/dynexec/internal/allocatorcontext"
)

// intakeCapacity bounds the EventIntake channel. Callers that post faster
// than the single consumer can drain block on Post rather than growing
// memory without limit, the same backpressure posture as the teacher's
// background task queueing.
const intakeCapacity = 4096

// postRequest pairs an event with the channel Post blocks on until the
// single consumer goroutine has applied it, giving event submission
// post-then-wait semantics (spec.md §9, design notes): a caller's Post
// call only returns once HandleEvent has actually run.
type postRequest struct {
	ctx  *allocatorcontext.Context
	ev   Event
	done chan struct{}
}

// EventIntake is the sole entry point scheduler-side code uses to deliver
// events to an AllocationManager. It serialises delivery through one
// channel and one consumer goroutine, so HandleEvent never needs to
// synchronise against itself (spec.md §4.5, §5).
type EventIntake struct {
	manager *AllocationManager
	queue   chan postRequest
	stopCh  chan struct{}
	done    chan struct{}
}

// NewEventIntake constructs an intake bound to manager. Call Run in its own
// goroutine, then Post events from any number of goroutines.
func NewEventIntake(manager *AllocationManager) *EventIntake {
	return &EventIntake{
		manager: manager,
		queue:   make(chan postRequest, intakeCapacity),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Post enqueues ev and blocks until the consumer goroutine has applied it
// via AllocationManager.HandleEvent, or until ctx is cancelled. It is safe
// to call concurrently from many goroutines.
func (i *EventIntake) Post(ctx *allocatorcontext.Context, ev Event) {
	req := postRequest{ctx: ctx, ev: ev, done: make(chan struct{})}
	select {
	case i.queue <- req:
	case <-i.stopCh:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-req.done:
	case <-ctx.Done():
	}
}

// Run drains the queue until Stop is called, applying each event in
// arrival order.
func (i *EventIntake) Run(ctx *allocatorcontext.Context) {
	for {
		select {
		case <-i.stopCh:
			close(i.done)
			return
		case req := <-i.queue:
			i.manager.HandleEvent(req.ctx, req.ev)
			close(req.done)
		}
	}
}

// Stop signals Run to exit and waits for it to do so.
func (i *EventIntake) Stop() {
	close(i.stopCh)
	<-i.done
}
