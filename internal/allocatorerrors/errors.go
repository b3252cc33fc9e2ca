// Package allocatorerrors implements the error taxonomy of the allocation
// controller: configuration errors (fatal at start), transient cluster-client
// errors (logged and retried next tick), inconsistent events (tolerated) and
// unknown-profile references (dropped). Grounded on
// internal/common/armadaerrors in the teacher codebase.
package allocatorerrors

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ConfigError indicates the controller was started with invalid bounds.
// The process is expected to abort; start() returns this wrapped in a
// *multierror.Error, even when only one field is invalid.
type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s=%v: %s", e.Field, e.Value, e.Message)
}

// NewConfigErrors aggregates one or more *ConfigError into a single error
// using hashicorp/go-multierror, the way armadaerrors' doc comment prescribes
// for functions that can fail for more than one independent reason.
func NewConfigErrors(errs ...*ConfigError) error {
	if len(errs) == 0 {
		return nil
	}
	var merr *multierror.Error
	for _, e := range errs {
		merr = multierror.Append(merr, e)
	}
	return merr.ErrorOrNil()
}

// ClusterClientError wraps a failure returned by the ClusterClient.
// Transient is true for ordinary RPC failures that the next tick will
// simply retry; it is never rolled back against local target state, since
// the allocation controller remains the source of truth.
type ClusterClientError struct {
	Operation string
	Transient bool
	Cause     error
}

func (e *ClusterClientError) Error() string {
	return fmt.Sprintf("cluster client %s failed: %s", e.Operation, e.Cause)
}

func (e *ClusterClientError) Unwrap() error {
	return e.Cause
}

// NewClusterClientError wraps cause with a stack trace via pkg/errors.
func NewClusterClientError(operation string, transient bool, cause error) *ClusterClientError {
	return &ClusterClientError{
		Operation: operation,
		Transient: transient,
		Cause:     errors.WithStack(cause),
	}
}

// InconsistentEventError represents an event the controller could not fully
// reconcile against known state: a TaskEnd for an unknown task, an
// ExecutorRemoved for an unknown id, or a duplicate ExecutorAdded. These are
// silently tolerated by the caller; the error exists purely so that it can be
// logged at debug level with context attached.
type InconsistentEventError struct {
	Kind    string
	Detail  string
}

func (e *InconsistentEventError) Error() string {
	return fmt.Sprintf("inconsistent event (%s): %s", e.Kind, e.Detail)
}

// ProfileNotFoundError indicates an event referred to a resource profile id
// the registry never assigned. Treated as a programmer error: the event is
// dropped and logged at error level by the caller.
type ProfileNotFoundError struct {
	ProfileId int
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("resource profile %d was not found in the registry", e.ProfileId)
}
