package allocation

import (
	"github.com/tgravescs/dynexec/internal/allocatorcontext"
)

// ClusterClient is the contract the core depends on to talk to the external
// cluster manager (spec.md §4.4). Transport, serialisation and the actual
// RPC are deliberately out of scope of this package; implementations are
// expected to apply their own timeouts, since this layer places none on the
// calls it makes (spec.md §5, Cancellation).
type ClusterClient interface {
	// RequestTotalExecutors declares the desired total executor count per
	// profile, the number of locality-aware pending tasks per profile, and
	// the per-profile host -> pending-local-task-count map. It is
	// idempotent: calling it repeatedly with the same values has no
	// additional effect. Returns whether the declaration was accepted.
	RequestTotalExecutors(
		ctx *allocatorcontext.Context,
		targets map[int]int,
		localityAwareTasks map[int]int,
		hostToLocalTaskCount map[int]map[string]int,
	) (bool, error)

	// KillExecutors asks the cluster manager to kill the given executors,
	// returning the subset actually killed. If replace is false, the
	// cluster must not request a replacement.
	KillExecutors(ctx *allocatorcontext.Context, ids []string, replace, force, countFailures bool) ([]string, error)

	// IsExecutorActive reports whether the cluster manager still considers
	// id a live executor.
	IsExecutorActive(ctx *allocatorcontext.Context, id string) (bool, error)
}
