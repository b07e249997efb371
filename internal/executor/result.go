package executor

import (
	"time"

	"github.com/benjamin-robertson/bolt/internal/rerun"
	"github.com/benjamin-robertson/bolt/internal/target"
)

// Result holds the outcome of one operation on one target. A connection or
// session failure is recorded in Err; a command that ran but exited non-zero
// has a nil Err and a non-zero ExitCode. Either counts as a failed target.
type Result struct {
	Target   target.Target
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	Duration time.Duration
}

// OK reports whether the operation succeeded on this target.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// ResultSet is the aggregate outcome of one operation across all targets.
// Per-target results complete in arbitrary order; the set is only observed
// after every target has finished.
type ResultSet struct {
	Results []Result
	Elapsed time.Duration
}

// Ok reports whether every target succeeded.
func (rs ResultSet) Ok() bool {
	for _, r := range rs.Results {
		if !r.OK() {
			return false
		}
	}
	return true
}

// Counts returns the number of succeeded and failed targets.
func (rs ResultSet) Counts() (ok, failed int) {
	for _, r := range rs.Results {
		if r.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// RerunResults maps the set to per-node rerun records.
func (rs ResultSet) RerunResults() []rerun.NodeResult {
	results := make([]rerun.NodeResult, len(rs.Results))
	for i, r := range rs.Results {
		results[i] = rerun.NodeResult{Node: r.Target.Name, OK: r.OK()}
	}
	return results
}
