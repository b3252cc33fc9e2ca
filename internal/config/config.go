// Package config defines the allocation controller's configuration surface,
// grounded on internal/scheduler/configuration in the teacher codebase:
// a struct validated with go-playground/validator plus a cross-field
// validation callback for invariants a single field tag can't express.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tgravescs/dynexec/internal/allocatorerrors"
)

// Configuration holds the dynamicAllocation.* and executor/task sizing keys
// described in spec.md §6.
type Configuration struct {
	// Enabled corresponds to dynamicAllocation.enabled.
	Enabled bool
	// MinExecutors is the floor on target executor count, applied to every profile.
	MinExecutors int `validate:"gte=0"`
	// MaxExecutors is the ceiling on target executor count, applied to every profile.
	MaxExecutors int `validate:"gte=0"`
	// InitialExecutors seeds the default profile's target at start().
	InitialExecutors int `validate:"gte=0"`
	// SchedulerBacklogTimeout is how long a backlog must persist before the
	// first ramp-up step is authorised.
	SchedulerBacklogTimeout time.Duration `validate:"required"`
	// SustainedSchedulerBacklogTimeout governs the cadence of every ramp-up
	// step after the first, while the backlog persists.
	SustainedSchedulerBacklogTimeout time.Duration `validate:"required"`
	// ExecutorIdleTimeout is how long a task-free executor waits before
	// becoming eligible for removal.
	ExecutorIdleTimeout time.Duration `validate:"required"`
	// CachedExecutorIdleTimeout governs executors holding cached blocks; see
	// SPEC_FULL.md §12.1. Zero (or any non-positive value) means executors
	// holding cached blocks are never removed for idleness.
	CachedExecutorIdleTimeout time.Duration
	// ExecutorAllocationRatio scales maxNeeded; in (0, 1].
	ExecutorAllocationRatio float64 `validate:"gt=0,lte=1"`
	// ExecutorCores is the default profile's executor.cores.
	ExecutorCores int `validate:"gte=1"`
	// TaskCPUs is the default profile's task.cpus.
	TaskCPUs int `validate:"gte=1"`
	// TickInterval is how often the schedule loop runs.
	TickInterval time.Duration `validate:"required"`
}

// Validate checks field-level constraints via go-playground/validator, plus
// the cross-field invariants (min <= initial <= max) that a struct tag alone
// cannot express, registered as a struct-level validation callback the way
// internal/scheduler/configuration registers SchedulingConfigValidation.
// Every problem found, from either path, is reported as this package's own
// *allocatorerrors.ConfigError, aggregated with hashicorp/go-multierror so
// start() can report them all at once.
func (c Configuration) Validate() error {
	v := validator.New()
	v.RegisterStructValidation(configurationCrossFieldValidation, Configuration{})

	if err := v.Struct(c); err != nil {
		return toConfigErrors(err)
	}
	return nil
}

// configurationCrossFieldValidation enforces minExecutors <= maxExecutors and
// minExecutors <= initialExecutors <= maxExecutors.
func configurationCrossFieldValidation(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Configuration)
	if cfg.MinExecutors > cfg.MaxExecutors {
		sl.ReportError(cfg.MinExecutors, "minExecutors", "MinExecutors", "ltemax", "")
	}
	if cfg.InitialExecutors < cfg.MinExecutors || cfg.InitialExecutors > cfg.MaxExecutors {
		sl.ReportError(cfg.InitialExecutors, "initialExecutors", "InitialExecutors", "inrange", "")
	}
}

// toConfigErrors converts go-playground/validator's field errors, whether
// raised by a struct tag or by configurationCrossFieldValidation, into this
// package's own *allocatorerrors.ConfigError taxonomy.
func toConfigErrors(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var configErrs []*allocatorerrors.ConfigError
	for _, verr := range verrs {
		configErrs = append(configErrs, &allocatorerrors.ConfigError{
			Field:   verr.Field(),
			Value:   verr.Value(),
			Message: fmt.Sprintf("failed %q validation", verr.Tag()),
		})
	}
	return allocatorerrors.NewConfigErrors(configErrs...)
}

// Default returns a Configuration with the defaults listed in spec.md §6,
// with SustainedSchedulerBacklogTimeout defaulting to SchedulerBacklogTimeout.
func Default() Configuration {
	return Configuration{
		Enabled:                           false,
		MinExecutors:                      0,
		MaxExecutors:                      1 << 30,
		InitialExecutors:                  0,
		SchedulerBacklogTimeout:           time.Second,
		SustainedSchedulerBacklogTimeout:  time.Second,
		ExecutorIdleTimeout:               60 * time.Second,
		CachedExecutorIdleTimeout:         0,
		ExecutorAllocationRatio:           1.0,
		ExecutorCores:                     1,
		TaskCPUs:                          1,
		TickInterval:                      time.Second,
	}
}
