// Package runtime implements the task/plan runtime collaborator: discovering
// tasks and plans on the modulepath, coercing parameters against task
// metadata, and executing tasks, plans, and manifests through the executor.
package runtime

import (
	"context"
	"os"
	"time"

	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/benjamin-robertson/bolt/internal/executor"
	"github.com/benjamin-robertson/bolt/internal/target"
)

// ParamSpec describes one declared task or plan parameter.
type ParamSpec struct {
	Type        string      `json:"type" yaml:"type"`
	Description string      `json:"description" yaml:"description"`
	Default     interface{} `json:"default" yaml:"default"`
}

// TaskInfo is the metadata for one discovered task.
type TaskInfo struct {
	Name        string
	Description string
	Parameters  map[string]ParamSpec
	File        string // path to the task implementation
}

// PlanInfo is the metadata for one discovered plan.
type PlanInfo struct {
	Name        string
	Description string
	Parameters  map[string]ParamSpec
}

// StepResult is the outcome of one plan step.
type StepResult struct {
	Name    string
	OK      bool
	Message string
}

// PlanResult is the single aggregate outcome of one plan run. Plan success
// is the plan's own result, not a per-target tally.
type PlanResult struct {
	Plan    string
	Steps   []StepResult
	Message string
	Elapsed time.Duration
}

// Ok reports overall plan success.
func (r PlanResult) Ok() bool {
	for _, s := range r.Steps {
		if !s.OK {
			return false
		}
	}
	return r.Message == ""
}

// Runtime is the task/plan runtime collaborator consumed by the dispatcher.
type Runtime interface {
	// ParseParams coerces raw parameter values against the task's declared
	// parameter schema and applies defaults. Values that arrived already
	// structured (via --params) are validated but not coerced.
	ParseParams(task string, raw map[string]interface{}, structured bool) (map[string]interface{}, error)

	RunTask(ctx context.Context, targets []target.Target, name string, params map[string]interface{}, noop bool) (executor.ResultSet, error)
	RunPlan(ctx context.Context, name string, params map[string]interface{}) (PlanResult, error)

	// ParseManifest reads manifest code from a file, or returns inline code
	// unchanged when path is empty.
	ParseManifest(path, code string) (string, error)

	GetTaskInfo(name string) (TaskInfo, error)
	ListTasks() ([]TaskInfo, error)
	GetPlanInfo(name string) (PlanInfo, error)
	ListPlans() ([]PlanInfo, error)
	ListModules() ([]string, error)
}

// ModulepathRuntime discovers tasks and plans under the configured
// modulepath and executes them through the executor.
type ModulepathRuntime struct {
	Modulepath []string
	Executor   executor.Executor
	Inventory  target.Inventory
}

// NewModulepathRuntime creates a runtime over the given module directories.
func NewModulepathRuntime(modulepath []string, exec executor.Executor, inv target.Inventory) *ModulepathRuntime {
	return &ModulepathRuntime{Modulepath: modulepath, Executor: exec, Inventory: inv}
}

// ParseManifest implements Runtime.
func (r *ModulepathRuntime) ParseManifest(path, code string) (string, error) {
	if path == "" {
		return code, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrFile,
			"Could not read manifest: "+path,
			"Check the path and file permissions")
	}
	return string(data), nil
}
