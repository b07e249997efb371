package dispatch

import (
	"github.com/benjamin-robertson/bolt/internal/executor"
	"github.com/benjamin-robertson/bolt/internal/runtime"
)

// Outcome is the closed set of strategy results. Each variant carries its
// strategy-specific result shape; ExitCode is a total function over the set.
type Outcome interface {
	isOutcome()
}

// AdHocOutcome is the result of command/script/file-upload execution across
// resolved targets.
type AdHocOutcome struct {
	Verb    string
	Results executor.ResultSet
}

// TaskOutcome is the result of a task run; like ad-hoc execution it tallies
// per-target results.
type TaskOutcome struct {
	Task    string
	Results executor.ResultSet
}

// PlanOutcome is the single result of a plan run.
type PlanOutcome struct {
	Result runtime.PlanResult
}

// ApplyOutcome is the result of compiling and applying a manifest.
type ApplyOutcome struct {
	// PrepFailed marks an apply_prep failure; Results then holds the prep
	// results rather than the apply results.
	PrepFailed bool
	Results    executor.ResultSet
}

// InstallOutcome is the result of a puppetfile install.
type InstallOutcome struct {
	OK bool
}

// InfoOutcome marks a read-only show operation; the information has already
// been rendered.
type InfoOutcome struct{}

func (AdHocOutcome) isOutcome()   {}
func (TaskOutcome) isOutcome()    {}
func (PlanOutcome) isOutcome()    {}
func (ApplyOutcome) isOutcome()   {}
func (InstallOutcome) isOutcome() {}
func (InfoOutcome) isOutcome()    {}

// Exit codes. Ad-hoc target failures (2) are deliberately distinct from
// plan/apply/install logical failures (1); downstream tooling depends on
// the distinction.
const (
	ExitSuccess       = 0
	ExitFailure       = 1
	ExitTargetFailure = 2
)

// ExitCode derives the process exit code from an outcome.
func ExitCode(out Outcome) int {
	switch o := out.(type) {
	case AdHocOutcome:
		if o.Results.Ok() {
			return ExitSuccess
		}
		return ExitTargetFailure
	case TaskOutcome:
		if o.Results.Ok() {
			return ExitSuccess
		}
		return ExitTargetFailure
	case PlanOutcome:
		if o.Result.Ok() {
			return ExitSuccess
		}
		return ExitFailure
	case ApplyOutcome:
		if !o.PrepFailed && o.Results.Ok() {
			return ExitSuccess
		}
		return ExitFailure
	case InstallOutcome:
		if o.OK {
			return ExitSuccess
		}
		return ExitFailure
	default:
		return ExitSuccess
	}
}
