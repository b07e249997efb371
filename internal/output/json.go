package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/benjamin-robertson/bolt/internal/executor"
	"github.com/benjamin-robertson/bolt/internal/puppetfile"
	"github.com/benjamin-robertson/bolt/internal/runtime"
)

// Envelope wraps all --format json output in a consistent structure for
// machine parsing.
type Envelope struct {
	Success bool        `json:"success"`
	Kind    string      `json:"kind"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// nodeResult is the wire shape of one per-target result.
type nodeResult struct {
	Node     string `json:"node"`
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Error    string `json:"error,omitempty"`
}

// JSONRenderer writes machine-readable output. Progress events are
// suppressed; only final envelopes are emitted.
type JSONRenderer struct {
	w io.Writer
}

// NewJSONRenderer creates a JSON renderer.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{w: w}
}

// HandleEvent implements executor.Observer. JSON output carries no
// incremental progress.
func (r *JSONRenderer) HandleEvent(event executor.Event) {}

func (r *JSONRenderer) emit(env Envelope) {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		fmt.Fprintf(r.w, `{"success":false,"error":%q}`+"\n", err.Error())
		return
	}
	fmt.Fprintln(r.w, string(data))
}

// RenderResults implements Renderer.
func (r *JSONRenderer) RenderResults(verb string, rs executor.ResultSet) {
	items := make([]nodeResult, len(rs.Results))
	for i, result := range rs.Results {
		item := nodeResult{
			Node:     result.Target.Name,
			Status:   "success",
			ExitCode: result.ExitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
		}
		if !result.OK() {
			item.Status = "failure"
		}
		if result.Err != nil {
			item.Error = result.Err.Error()
		}
		items[i] = item
	}
	r.emit(Envelope{Success: rs.Ok(), Kind: verb, Data: items})
}

// RenderPlanResult implements Renderer.
func (r *JSONRenderer) RenderPlanResult(result runtime.PlanResult) {
	r.emit(Envelope{Success: result.Ok(), Kind: "plan", Data: result})
}

// RenderTask implements Renderer.
func (r *JSONRenderer) RenderTask(info runtime.TaskInfo) {
	r.emit(Envelope{Success: true, Kind: "task", Data: info})
}

// RenderTasks implements Renderer.
func (r *JSONRenderer) RenderTasks(tasks []runtime.TaskInfo) {
	r.emit(Envelope{Success: true, Kind: "tasks", Data: tasks})
}

// RenderPlan implements Renderer.
func (r *JSONRenderer) RenderPlan(info runtime.PlanInfo) {
	r.emit(Envelope{Success: true, Kind: "plan_info", Data: info})
}

// RenderPlans implements Renderer.
func (r *JSONRenderer) RenderPlans(plans []runtime.PlanInfo) {
	r.emit(Envelope{Success: true, Kind: "plans", Data: plans})
}

// RenderModules implements Renderer.
func (r *JSONRenderer) RenderModules(modules []puppetfile.Module) {
	r.emit(Envelope{Success: true, Kind: "modules", Data: modules})
}

// RenderMessage implements Renderer.
func (r *JSONRenderer) RenderMessage(message string) {
	r.emit(Envelope{Success: true, Kind: "message", Data: message})
}

// RenderError implements Renderer.
func (r *JSONRenderer) RenderError(err error) {
	r.emit(Envelope{Success: false, Kind: "error", Error: err.Error()})
}
