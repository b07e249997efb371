package dispatch

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/benjamin-robertson/bolt/internal/executor"
	"github.com/benjamin-robertson/bolt/internal/output"
	"github.com/benjamin-robertson/bolt/internal/request"
	"github.com/benjamin-robertson/bolt/internal/rerun"
	"github.com/benjamin-robertson/bolt/internal/target"
)

// applyPrepCommand probes each target before a manifest is applied.
const applyPrepCommand = "command -v puppet >/dev/null 2>&1"

// Dispatcher runs one validated request through its execution strategy.
type Dispatcher struct {
	session *Session
	guard   *guard
}

// New creates a dispatcher over the session's collaborators.
func New(session *Session) *Dispatcher {
	return &Dispatcher{session: session, guard: newGuard(session.Log)}
}

// Run resolves targets, executes the strategy selected by the request's
// subcommand and action, renders the result, and returns the outcome. The
// process exit code is ExitCode(outcome).
//
// For concurrency-bearing strategies the dispatcher always persists a rerun
// record and always shuts the executor down, on interrupted and failed paths
// included.
func (d *Dispatcher) Run(ctx context.Context, req *request.ExecutionRequest) (Outcome, error) {
	if out, handled, err := d.runLocal(req); handled {
		return out, err
	}

	targets, err := d.session.Resolver.Resolve(req)
	if err != nil {
		return nil, err
	}

	if req.Description != "" {
		d.session.Log.Info("run: %s", req.Description)
	}

	d.session.Executor.Subscribe(d.session.Renderer)
	d.session.Executor.Subscribe(&output.LogObserver{Log: d.session.Log})
	defer d.session.Executor.Shutdown()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	restore := d.guard.install(cancel)
	defer restore()

	out, runErr := d.execute(runCtx, req, targets)

	if saveErr := d.saveRerun(out, targets); saveErr != nil {
		d.session.Log.Warn("could not save rerun record: %v", saveErr)
	}
	if runErr != nil {
		return nil, runErr
	}

	d.render(out)
	return out, nil
}

// runLocal handles the strategies that never touch a target: documentation
// shows and puppetfile operations. They bypass resolution, the interrupt
// guard, and rerun persistence entirely.
func (d *Dispatcher) runLocal(req *request.ExecutionRequest) (Outcome, bool, error) {
	s := d.session
	switch {
	case req.Subcommand == request.SubTask && req.Action == request.ActionShow:
		if req.Object == "" {
			tasks, err := s.Runtime.ListTasks()
			if err != nil {
				return nil, true, err
			}
			s.Renderer.RenderTasks(tasks)
		} else {
			info, err := s.Runtime.GetTaskInfo(req.Object)
			if err != nil {
				return nil, true, err
			}
			s.Renderer.RenderTask(info)
		}
		return InfoOutcome{}, true, nil

	case req.Subcommand == request.SubPlan && req.Action == request.ActionShow:
		if req.Object == "" {
			plans, err := s.Runtime.ListPlans()
			if err != nil {
				return nil, true, err
			}
			s.Renderer.RenderPlans(plans)
		} else {
			info, err := s.Runtime.GetPlanInfo(req.Object)
			if err != nil {
				return nil, true, err
			}
			s.Renderer.RenderPlan(info)
		}
		return InfoOutcome{}, true, nil

	case req.Subcommand == request.SubPuppetfile && req.Action == request.ActionShowModules:
		modules, err := s.Modules.List()
		if err != nil {
			return nil, true, err
		}
		s.Renderer.RenderModules(modules)
		return InfoOutcome{}, true, nil

	case req.Subcommand == request.SubPuppetfile && req.Action == request.ActionInstall:
		if err := s.Modules.Install(); err != nil {
			return nil, true, err
		}
		s.Renderer.RenderMessage("Installed modules from Puppetfile")
		return InstallOutcome{OK: true}, true, nil
	}
	return nil, false, nil
}

// execute selects the strategy for the request. The switch is total over the
// subcommand/action pairs that survive validation.
func (d *Dispatcher) execute(ctx context.Context, req *request.ExecutionRequest, targets []target.Target) (Outcome, error) {
	s := d.session
	switch {
	case req.Subcommand == request.SubCommand:
		rs, err := s.Executor.RunCommand(ctx, targets, req.Object)
		if err != nil {
			return nil, err
		}
		return AdHocOutcome{Verb: "Ran command", Results: rs}, nil

	case req.Subcommand == request.SubScript:
		rs, err := s.Executor.RunScript(ctx, targets, req.Object, req.LeftoverArgs, nil)
		if err != nil {
			return nil, err
		}
		return AdHocOutcome{Verb: "Ran script", Results: rs}, nil

	case req.Subcommand == request.SubFile && req.Action == request.ActionUpload:
		rs, err := s.Executor.UploadFile(ctx, targets, req.Object, req.LeftoverArgs[0])
		if err != nil {
			return nil, err
		}
		return AdHocOutcome{Verb: "Uploaded file", Results: rs}, nil

	case req.Subcommand == request.SubTask && req.Action == request.ActionRun:
		params, err := s.Runtime.ParseParams(req.Object, req.TaskOptions, req.ParamsParsed)
		if err != nil {
			return nil, err
		}
		rs, err := s.Runtime.RunTask(ctx, targets, req.Object, params, req.Noop)
		if err != nil {
			return nil, err
		}
		return TaskOutcome{Task: req.Object, Results: rs}, nil

	case req.Subcommand == request.SubPlan && req.Action == request.ActionRun:
		return d.runPlan(ctx, req, targets)

	case req.Subcommand == request.SubApply:
		return d.runApply(ctx, req, targets)
	}

	return nil, errors.New(errors.ErrUsage,
		fmt.Sprintf("No strategy for %s %s", req.Subcommand, req.Action),
		"")
}

// runPlan injects resolved targets as the plan's 'nodes' parameter and runs
// the plan. Targets on the command line conflict with a 'nodes' parameter
// supplied directly.
func (d *Dispatcher) runPlan(ctx context.Context, req *request.ExecutionRequest, targets []target.Target) (Outcome, error) {
	params := make(map[string]interface{}, len(req.TaskOptions)+1)
	for k, v := range req.TaskOptions {
		params[k] = v
	}
	if len(targets) > 0 {
		if _, exists := params["nodes"]; exists {
			return nil, errors.New(errors.ErrUsage,
				"Cannot pass a targeting option and a 'nodes' plan parameter",
				"Use either --nodes/--targets/--query/--rerun or nodes=..., not both")
		}
		names := make([]string, len(targets))
		for i, t := range targets {
			names[i] = t.Name
		}
		params["nodes"] = strings.Join(names, ",")
	}

	result, err := d.session.Runtime.RunPlan(ctx, req.Object, params)
	if err != nil {
		return nil, err
	}
	return PlanOutcome{Result: result}, nil
}

// runApply compiles the manifest, runs apply_prep against every target, then
// applies the manifest. Puppet's detailed exit codes 0 (unchanged) and
// 2 (changed) both count as success.
func (d *Dispatcher) runApply(ctx context.Context, req *request.ExecutionRequest, targets []target.Target) (Outcome, error) {
	s := d.session
	code, err := s.Runtime.ParseManifest(req.Object, req.ExecuteCode)
	if err != nil {
		return nil, err
	}

	s.Executor.PublishEvent(executor.Event{Type: executor.EventStepStart, Message: "apply_prep"})
	prep, err := s.Executor.RunCommand(ctx, targets, applyPrepCommand)
	if err != nil {
		return nil, err
	}
	s.Executor.PublishEvent(executor.Event{Type: executor.EventStepResult, Message: "apply_prep", OK: prep.Ok()})
	if !prep.Ok() {
		return ApplyOutcome{PrepFailed: true, Results: prep}, nil
	}

	script, cleanup, err := writeApplyScript(code, req.Noop)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	results, err := s.Executor.RunScript(ctx, targets, script, nil, nil)
	if err != nil {
		return nil, err
	}
	return ApplyOutcome{Results: results}, nil
}

// writeApplyScript renders the manifest into a self-contained shell script
// that stages the code on the target and runs puppet apply over it.
func writeApplyScript(code string, noop bool) (path string, cleanup func(), err error) {
	noopFlag := ""
	if noop {
		noopFlag = "--noop "
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("manifest=$(mktemp)\n")
	b.WriteString("trap 'rm -f \"$manifest\"' EXIT\n")
	b.WriteString("cat > \"$manifest\" <<'BOLT_MANIFEST'\n")
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("BOLT_MANIFEST\n")
	b.WriteString(fmt.Sprintf("puppet apply %s--detailed-exitcodes \"$manifest\"\n", noopFlag))
	b.WriteString("rc=$?\n")
	b.WriteString("if [ \"$rc\" -eq 0 ] || [ \"$rc\" -eq 2 ]; then exit 0; fi\n")
	b.WriteString("exit \"$rc\"\n")

	f, err := os.CreateTemp("", "bolt-apply-*.sh")
	if err != nil {
		return "", nil, errors.WrapWithCode(err, errors.ErrFile,
			"Could not stage manifest for apply", "")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, errors.WrapWithCode(err, errors.ErrFile,
			"Could not stage manifest for apply", "")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, errors.WrapWithCode(err, errors.ErrFile,
			"Could not stage manifest for apply", "")
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// saveRerun writes the rerun record. The record is written for every targeted
// run: successes, target failures, and runtime failures alike. A runtime
// failure that produced no results records every target as failed.
func (d *Dispatcher) saveRerun(out Outcome, targets []target.Target) error {
	if len(targets) == 0 {
		return nil
	}

	var results []rerun.NodeResult
	switch o := out.(type) {
	case AdHocOutcome:
		results = o.Results.RerunResults()
	case TaskOutcome:
		results = o.Results.RerunResults()
	case ApplyOutcome:
		results = o.Results.RerunResults()
	case PlanOutcome:
		ok := o.Result.Ok()
		for _, t := range targets {
			results = append(results, rerun.NodeResult{Node: t.Name, OK: ok})
		}
	default:
		for _, t := range targets {
			results = append(results, rerun.NodeResult{Node: t.Name, OK: false})
		}
	}
	return d.session.Rerun.Save(results)
}

// render presents the outcome of an executed strategy.
func (d *Dispatcher) render(out Outcome) {
	switch o := out.(type) {
	case AdHocOutcome:
		d.session.Renderer.RenderResults(o.Verb, o.Results)
	case TaskOutcome:
		d.session.Renderer.RenderResults("Ran task "+o.Task, o.Results)
	case PlanOutcome:
		d.session.Renderer.RenderPlanResult(o.Result)
	case ApplyOutcome:
		if o.PrepFailed {
			d.session.Renderer.RenderResults("Ran apply_prep", o.Results)
			return
		}
		d.session.Renderer.RenderResults("Applied manifest", o.Results)
	}
}
