package dispatch

import (
	"bytes"
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/benjamin-robertson/bolt/internal/executor"
	"github.com/benjamin-robertson/bolt/internal/logger"
	"github.com/benjamin-robertson/bolt/internal/output"
	"github.com/benjamin-robertson/bolt/internal/puppetfile"
	"github.com/benjamin-robertson/bolt/internal/request"
	"github.com/benjamin-robertson/bolt/internal/rerun"
	"github.com/benjamin-robertson/bolt/internal/runtime"
	"github.com/benjamin-robertson/bolt/internal/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor scripts per-target failures and records every call.
type fakeExecutor struct {
	failNodes map[string]bool

	commands      []string
	scriptBodies  []string
	uploads       [][2]string
	subscribers   int
	shutdownCalls int32
}

func (f *fakeExecutor) resultSet(targets []target.Target) executor.ResultSet {
	rs := executor.ResultSet{Elapsed: time.Second}
	for _, t := range targets {
		code := 0
		if f.failNodes[t.Name] {
			code = 1
		}
		rs.Results = append(rs.Results, executor.Result{Target: t, ExitCode: code})
	}
	return rs
}

func (f *fakeExecutor) RunCommand(ctx context.Context, targets []target.Target, cmd string) (executor.ResultSet, error) {
	f.commands = append(f.commands, cmd)
	return f.resultSet(targets), nil
}

func (f *fakeExecutor) RunScript(ctx context.Context, targets []target.Target, path string, args []string, env map[string]string) (executor.ResultSet, error) {
	// Read the staged script now: the dispatcher deletes it after the call.
	body, err := os.ReadFile(path)
	if err != nil {
		return executor.ResultSet{}, err
	}
	f.scriptBodies = append(f.scriptBodies, string(body))
	return f.resultSet(targets), nil
}

func (f *fakeExecutor) UploadFile(ctx context.Context, targets []target.Target, src, dest string) (executor.ResultSet, error) {
	f.uploads = append(f.uploads, [2]string{src, dest})
	return f.resultSet(targets), nil
}

func (f *fakeExecutor) Subscribe(o executor.Observer)     { f.subscribers++ }
func (f *fakeExecutor) PublishEvent(event executor.Event) {}
func (f *fakeExecutor) Shutdown()                         { atomic.AddInt32(&f.shutdownCalls, 1) }

// fakeRuntime scripts task/plan results and records the parameters it saw.
type fakeRuntime struct {
	taskParams map[string]interface{}
	taskNoop   bool
	taskErr    error
	taskSet    executor.ResultSet

	planParams map[string]interface{}
	planResult runtime.PlanResult

	tasks []runtime.TaskInfo
}

func (f *fakeRuntime) ParseParams(task string, raw map[string]interface{}, structured bool) (map[string]interface{}, error) {
	return raw, nil
}

func (f *fakeRuntime) RunTask(ctx context.Context, targets []target.Target, name string, params map[string]interface{}, noop bool) (executor.ResultSet, error) {
	f.taskParams = params
	f.taskNoop = noop
	if f.taskErr != nil {
		return executor.ResultSet{}, f.taskErr
	}
	return f.taskSet, nil
}

func (f *fakeRuntime) RunPlan(ctx context.Context, name string, params map[string]interface{}) (runtime.PlanResult, error) {
	f.planParams = params
	return f.planResult, nil
}

func (f *fakeRuntime) ParseManifest(path, code string) (string, error) {
	if path == "" {
		return code, nil
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func (f *fakeRuntime) GetTaskInfo(name string) (runtime.TaskInfo, error) {
	return runtime.TaskInfo{Name: name}, nil
}
func (f *fakeRuntime) ListTasks() ([]runtime.TaskInfo, error) { return f.tasks, nil }
func (f *fakeRuntime) GetPlanInfo(name string) (runtime.PlanInfo, error) {
	return runtime.PlanInfo{Name: name}, nil
}
func (f *fakeRuntime) ListPlans() ([]runtime.PlanInfo, error) { return nil, nil }
func (f *fakeRuntime) ListModules() ([]string, error)         { return nil, nil }

// fakeInventory materializes every requested name as a target.
type fakeInventory struct{ calls int }

func (f *fakeInventory) GetTargets(names []string) ([]target.Target, error) {
	f.calls++
	targets := make([]target.Target, len(names))
	for i, name := range names {
		targets[i] = target.Target{Name: name, Host: name, Port: 22}
	}
	return targets, nil
}
func (f *fakeInventory) NodeNames() []string  { return nil }
func (f *fakeInventory) GroupNames() []string { return nil }

// fakeRerunStore records every saved rerun record.
type fakeRerunStore struct {
	saved [][]rerun.NodeResult
}

func (f *fakeRerunStore) Save(results []rerun.NodeResult) error {
	f.saved = append(f.saved, results)
	return nil
}

// fakeModules scripts Puppetfile operations.
type fakeModules struct {
	modules    []puppetfile.Module
	installErr error
	installed  bool
}

func (f *fakeModules) List() ([]puppetfile.Module, error) { return f.modules, nil }
func (f *fakeModules) Install() error {
	f.installed = true
	return f.installErr
}

type harness struct {
	exec    *fakeExecutor
	runtime *fakeRuntime
	inv     *fakeInventory
	rerun   *fakeRerunStore
	modules *fakeModules
	out     *bytes.Buffer
	disp    *Dispatcher
}

func newHarness() *harness {
	h := &harness{
		exec:    &fakeExecutor{failNodes: map[string]bool{}},
		runtime: &fakeRuntime{},
		inv:     &fakeInventory{},
		rerun:   &fakeRerunStore{},
		modules: &fakeModules{},
		out:     &bytes.Buffer{},
	}
	h.disp = New(&Session{
		Executor: h.exec,
		Runtime:  h.runtime,
		Resolver: &target.Resolver{Inventory: h.inv},
		Modules:  h.modules,
		Rerun:    h.rerun,
		Renderer: output.New("human", h.out, false),
		Log:      logger.NewBufferLogger(),
	})
	return h
}

func targetedRequest(sub request.Subcommand, action request.Action, object string) *request.ExecutionRequest {
	req := request.New(sub, action)
	req.Object = object
	_ = req.SetTargeting(request.TargetingNodes, "web1,web2")
	return req
}

func TestRunCommandTargetFailure(t *testing.T) {
	h := newHarness()
	h.exec.failNodes["web2"] = true

	out, err := h.disp.Run(context.Background(), targetedRequest(request.SubCommand, request.ActionNone, "uptime"))
	require.NoError(t, err)

	assert.Equal(t, ExitTargetFailure, ExitCode(out))
	assert.Equal(t, []string{"uptime"}, h.exec.commands)

	require.Len(t, h.rerun.saved, 1)
	assert.Equal(t, []rerun.NodeResult{
		{Node: "web1", OK: true},
		{Node: "web2", OK: false},
	}, h.rerun.saved[0])
}

func TestRunCommandSuccess(t *testing.T) {
	h := newHarness()

	out, err := h.disp.Run(context.Background(), targetedRequest(request.SubCommand, request.ActionNone, "uptime"))
	require.NoError(t, err)

	assert.Equal(t, ExitSuccess, ExitCode(out))
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.exec.shutdownCalls))
	assert.Contains(t, h.out.String(), "2 succeeded, 0 failed")
}

func TestFileUpload(t *testing.T) {
	h := newHarness()
	req := targetedRequest(request.SubFile, request.ActionUpload, "/local/app.conf")
	req.LeftoverArgs = []string{"/etc/app.conf"}

	out, err := h.disp.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ExitSuccess, ExitCode(out))
	require.Len(t, h.exec.uploads, 1)
	assert.Equal(t, [2]string{"/local/app.conf", "/etc/app.conf"}, h.exec.uploads[0])
}

func TestTaskRunForwardsNoop(t *testing.T) {
	h := newHarness()
	h.runtime.taskSet = h.exec.resultSet([]target.Target{{Name: "web1"}})

	req := targetedRequest(request.SubTask, request.ActionRun, "package::status")
	req.TaskOptions["name"] = "nginx"
	req.Noop = true

	out, err := h.disp.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ExitSuccess, ExitCode(out))
	assert.True(t, h.runtime.taskNoop)
	assert.Equal(t, "nginx", h.runtime.taskParams["name"])
}

func TestTaskRuntimeFailureStillSavesRerun(t *testing.T) {
	h := newHarness()
	h.runtime.taskErr = errors.New(errors.ErrRuntime, "Task implementation is missing", "")

	_, err := h.disp.Run(context.Background(), targetedRequest(request.SubTask, request.ActionRun, "package::status"))
	require.Error(t, err)

	// The record is still written, with every target marked failed, and the
	// executor is still shut down.
	require.Len(t, h.rerun.saved, 1)
	assert.Equal(t, []rerun.NodeResult{
		{Node: "web1", OK: false},
		{Node: "web2", OK: false},
	}, h.rerun.saved[0])
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.exec.shutdownCalls))
}

func TestPlanInjectsNodesParam(t *testing.T) {
	h := newHarness()
	h.runtime.planResult = runtime.PlanResult{Plan: "deploy::rollout"}

	out, err := h.disp.Run(context.Background(), targetedRequest(request.SubPlan, request.ActionRun, "deploy::rollout"))
	require.NoError(t, err)

	assert.Equal(t, ExitSuccess, ExitCode(out))
	assert.Equal(t, "web1,web2", h.runtime.planParams["nodes"])
}

func TestPlanNodesParamConflictsWithTargeting(t *testing.T) {
	h := newHarness()
	req := targetedRequest(request.SubPlan, request.ActionRun, "deploy::rollout")
	req.TaskOptions["nodes"] = "db1"

	_, err := h.disp.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrUsage))
}

func TestPlanLogicalFailure(t *testing.T) {
	h := newHarness()
	h.runtime.planResult = runtime.PlanResult{
		Plan:    "deploy::rollout",
		Steps:   []runtime.StepResult{{Name: "stop", OK: false}},
		Message: "Plan aborted: step 'stop' failed",
	}

	out, err := h.disp.Run(context.Background(), targetedRequest(request.SubPlan, request.ActionRun, "deploy::rollout"))
	require.NoError(t, err)

	// Plan failure is a logical failure, not a per-target tally.
	assert.Equal(t, ExitFailure, ExitCode(out))
	require.Len(t, h.rerun.saved, 1)
	for _, r := range h.rerun.saved[0] {
		assert.False(t, r.OK)
	}
}

func TestUntargetedPlanSkipsResolutionAndRerun(t *testing.T) {
	h := newHarness()
	h.runtime.planResult = runtime.PlanResult{Plan: "deploy::rollout"}
	req := request.New(request.SubPlan, request.ActionRun)
	req.Object = "deploy::rollout"

	out, err := h.disp.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ExitSuccess, ExitCode(out))
	assert.Zero(t, h.inv.calls)
	assert.Empty(t, h.rerun.saved)
	assert.NotContains(t, h.runtime.planParams, "nodes")
}

func TestApplyRunsPrepThenManifest(t *testing.T) {
	h := newHarness()
	req := targetedRequest(request.SubApply, request.ActionNone, "")
	req.ExecuteCode = `notify { 'hello': }`
	req.Noop = true

	out, err := h.disp.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ExitSuccess, ExitCode(out))
	assert.Equal(t, []string{applyPrepCommand}, h.exec.commands)
	require.Len(t, h.exec.scriptBodies, 1)
	assert.Contains(t, h.exec.scriptBodies[0], "puppet apply --noop --detailed-exitcodes")
	assert.Contains(t, h.exec.scriptBodies[0], `notify { 'hello': }`)
}

func TestApplyPrepFailureAborts(t *testing.T) {
	h := newHarness()
	h.exec.failNodes["web1"] = true
	req := targetedRequest(request.SubApply, request.ActionNone, "")
	req.ExecuteCode = `notify { 'hello': }`

	out, err := h.disp.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ExitFailure, ExitCode(out))
	assert.Empty(t, h.exec.scriptBodies)
}

func TestTaskShowBypassesExecution(t *testing.T) {
	h := newHarness()
	h.runtime.tasks = []runtime.TaskInfo{{Name: "package", Description: "Manage a package"}}

	req := request.New(request.SubTask, request.ActionShow)
	out, err := h.disp.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ExitSuccess, ExitCode(out))
	assert.IsType(t, InfoOutcome{}, out)
	assert.Zero(t, h.inv.calls)
	assert.Zero(t, h.exec.subscribers)
	assert.Empty(t, h.rerun.saved)
	assert.Contains(t, h.out.String(), "package")
}

func TestPuppetfileInstall(t *testing.T) {
	h := newHarness()

	req := request.New(request.SubPuppetfile, request.ActionInstall)
	out, err := h.disp.Run(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, h.modules.installed)
	assert.Equal(t, ExitSuccess, ExitCode(out))
}

func TestPuppetfileInstallFailure(t *testing.T) {
	h := newHarness()
	h.modules.installErr = errors.New(errors.ErrFile, "Could not find a Puppetfile", "")

	_, err := h.disp.Run(context.Background(), request.New(request.SubPuppetfile, request.ActionInstall))
	require.Error(t, err)
}

func TestPuppetfileShowModules(t *testing.T) {
	h := newHarness()
	h.modules.modules = []puppetfile.Module{{Name: "puppetlabs-stdlib", Version: "6.0.0"}}

	out, err := h.disp.Run(context.Background(), request.New(request.SubPuppetfile, request.ActionShowModules))
	require.NoError(t, err)

	assert.IsType(t, InfoOutcome{}, out)
	assert.Contains(t, h.out.String(), "puppetlabs-stdlib")
}

func TestExitCodeTotal(t *testing.T) {
	okSet := executor.ResultSet{Results: []executor.Result{{ExitCode: 0}}}
	failSet := executor.ResultSet{Results: []executor.Result{{ExitCode: 1}}}

	tests := []struct {
		name    string
		outcome Outcome
		want    int
	}{
		{"adhoc ok", AdHocOutcome{Results: okSet}, 0},
		{"adhoc failed target", AdHocOutcome{Results: failSet}, 2},
		{"task ok", TaskOutcome{Results: okSet}, 0},
		{"task failed target", TaskOutcome{Results: failSet}, 2},
		{"plan ok", PlanOutcome{Result: runtime.PlanResult{}}, 0},
		{"plan failed", PlanOutcome{Result: runtime.PlanResult{Message: "Plan aborted"}}, 1},
		{"apply ok", ApplyOutcome{Results: okSet}, 0},
		{"apply failed", ApplyOutcome{Results: failSet}, 1},
		{"apply prep failed", ApplyOutcome{PrepFailed: true, Results: okSet}, 1},
		{"install ok", InstallOutcome{OK: true}, 0},
		{"install failed", InstallOutcome{}, 1},
		{"info", InfoOutcome{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.outcome))
		})
	}
}

func TestGuardCancelsOnSignal(t *testing.T) {
	log := logger.NewBufferLogger()
	g := newGuard(log)

	var captured chan<- os.Signal
	stopped := false
	g.notify = func(c chan<- os.Signal, sig ...os.Signal) { captured = c }
	g.stop = func(c chan<- os.Signal) { stopped = true }

	ctx, cancel := context.WithCancel(context.Background())
	restore := g.install(cancel)
	require.NotNil(t, captured)

	captured <- os.Interrupt

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled after interrupt")
	}
	assert.True(t, log.HasLevel("warn"))

	restore()
	assert.True(t, stopped)
}

func TestGuardRestoreWithoutSignal(t *testing.T) {
	g := newGuard(logger.Noop())

	var captured chan<- os.Signal
	g.notify = func(c chan<- os.Signal, sig ...os.Signal) { captured = c }
	g.stop = func(c chan<- os.Signal) {}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	restore := g.install(cancel)
	restore()

	require.NotNil(t, captured)
	assert.NoError(t, ctx.Err())
}
