package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/benjamin-robertson/bolt/internal/executor"
	"github.com/benjamin-robertson/bolt/internal/target"
	"gopkg.in/yaml.v3"
)

// planFile is the on-disk plans/<name>.yaml structure. Steps run in order;
// each step is exactly one of command, task, or script.
type planFile struct {
	Description string               `yaml:"description"`
	Parameters  map[string]ParamSpec `yaml:"parameters"`
	Steps       []planStep           `yaml:"steps"`
}

type planStep struct {
	Name    string                 `yaml:"name"`
	Command string                 `yaml:"command"`
	Task    string                 `yaml:"task"`
	Script  string                 `yaml:"script"`
	Params  map[string]interface{} `yaml:"params"`
}

// findPlan locates a plan definition on the modulepath.
func (r *ModulepathRuntime) findPlan(name string) (string, planFile, error) {
	module, plan := splitTaskName(name)

	for _, dir := range r.Modulepath {
		path := filepath.Join(dir, module, "plans", plan+".yaml")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var file planFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return "", planFile{}, errors.WrapWithCode(err, errors.ErrFile,
				"Invalid plan definition: "+path,
				"Check the YAML structure of the plan")
		}
		return path, file, nil
	}
	return "", planFile{}, errors.New(errors.ErrRuntime,
		fmt.Sprintf("Could not find plan '%s'", name),
		"Run 'bolt plan show' to list available plans")
}

// GetPlanInfo loads a plan's metadata.
func (r *ModulepathRuntime) GetPlanInfo(name string) (PlanInfo, error) {
	_, file, err := r.findPlan(name)
	if err != nil {
		return PlanInfo{}, err
	}
	info := PlanInfo{Name: name, Description: file.Description, Parameters: file.Parameters}
	if info.Parameters == nil {
		info.Parameters = map[string]ParamSpec{}
	}
	return info, nil
}

// ListPlans discovers every plan on the modulepath, sorted by name.
func (r *ModulepathRuntime) ListPlans() ([]PlanInfo, error) {
	seen := map[string]bool{}
	var plans []PlanInfo

	for _, dir := range r.Modulepath {
		modules, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, mod := range modules {
			if !mod.IsDir() {
				continue
			}
			entries, err := os.ReadDir(filepath.Join(dir, mod.Name(), "plans"))
			if err != nil {
				continue
			}
			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
					continue
				}
				base := strings.TrimSuffix(entry.Name(), ".yaml")
				name := mod.Name() + "::" + base
				if base == "init" {
					name = mod.Name()
				}
				if seen[name] {
					continue
				}
				seen[name] = true

				info, err := r.GetPlanInfo(name)
				if err != nil {
					continue
				}
				plans = append(plans, info)
			}
		}
	}

	sort.Slice(plans, func(i, j int) bool { return plans[i].Name < plans[j].Name })
	return plans, nil
}

// RunPlan executes a plan as a single unit. The plan's own result, not a
// per-target tally, determines success: a failed step marks the whole plan
// failed and stops execution.
func (r *ModulepathRuntime) RunPlan(ctx context.Context, name string, params map[string]interface{}) (PlanResult, error) {
	_, file, err := r.findPlan(name)
	if err != nil {
		return PlanResult{}, err
	}

	start := time.Now()
	result := PlanResult{Plan: name}

	targets, err := r.planTargets(params)
	if err != nil {
		return PlanResult{}, err
	}
	noop, _ := params["_noop"].(bool)

	for i, step := range file.Steps {
		stepName := step.Name
		if stepName == "" {
			stepName = fmt.Sprintf("step %d", i+1)
		}

		ok, message, err := r.runStep(ctx, step, targets, noop)
		if err != nil {
			result.Elapsed = time.Since(start)
			return result, err
		}
		result.Steps = append(result.Steps, StepResult{Name: stepName, OK: ok, Message: message})
		if !ok {
			result.Message = fmt.Sprintf("Plan aborted: step '%s' failed", stepName)
			break
		}
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// planTargets materializes the plan's nodes parameter. Plans without a
// nodes parameter run no remote steps against targets.
func (r *ModulepathRuntime) planTargets(params map[string]interface{}) ([]target.Target, error) {
	raw, ok := params["nodes"]
	if !ok {
		return nil, nil
	}

	var names []string
	switch v := raw.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				names = append(names, part)
			}
		}
	case []string:
		names = v
	case []interface{}:
		for _, item := range v {
			names = append(names, fmt.Sprintf("%v", item))
		}
	default:
		return nil, errors.New(errors.ErrRuntime,
			"Plan parameter 'nodes' must be a list of node names",
			"")
	}
	return r.Inventory.GetTargets(names)
}

// runStep executes one plan step and summarizes its outcome.
func (r *ModulepathRuntime) runStep(ctx context.Context, step planStep, targets []target.Target, noop bool) (bool, string, error) {
	if len(targets) == 0 && (step.Command != "" || step.Task != "" || step.Script != "") {
		return false, "no targets for step", nil
	}

	var rs executor.ResultSet
	var err error
	switch {
	case step.Command != "":
		rs, err = r.Executor.RunCommand(ctx, targets, step.Command)
	case step.Task != "":
		rs, err = r.RunTask(ctx, targets, step.Task, step.Params, noop)
	case step.Script != "":
		rs, err = r.Executor.RunScript(ctx, targets, step.Script, nil, nil)
	default:
		return false, "step declares no command, task, or script", nil
	}
	if err != nil {
		return false, "", err
	}

	ok, failed := rs.Counts()
	return rs.Ok(), fmt.Sprintf("%d succeeded, %d failed", ok, failed), nil
}
