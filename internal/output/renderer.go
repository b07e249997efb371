// Package output renders execution progress and results to the terminal.
// Renderers double as progress observers on the executor's event stream.
package output

import (
	"io"

	"github.com/benjamin-robertson/bolt/internal/executor"
	"github.com/benjamin-robertson/bolt/internal/logger"
	"github.com/benjamin-robertson/bolt/internal/puppetfile"
	"github.com/benjamin-robertson/bolt/internal/runtime"
)

// Renderer presents results and progress to the user.
type Renderer interface {
	executor.Observer

	RenderResults(verb string, rs executor.ResultSet)
	RenderPlanResult(result runtime.PlanResult)

	RenderTask(info runtime.TaskInfo)
	RenderTasks(tasks []runtime.TaskInfo)
	RenderPlan(info runtime.PlanInfo)
	RenderPlans(plans []runtime.PlanInfo)
	RenderModules(modules []puppetfile.Module)

	RenderMessage(message string)
	RenderError(err error)
}

// New creates a renderer for the given format.
func New(format string, w io.Writer, verbose bool) Renderer {
	if format == "json" {
		return NewJSONRenderer(w)
	}
	return NewHumanRenderer(w, verbose)
}

// LogObserver forwards executor events to a logger. Subscribed alongside the
// renderer so events land in debug logs as well as on screen.
type LogObserver struct {
	Log logger.Logger
}

// HandleEvent implements executor.Observer.
func (o *LogObserver) HandleEvent(event executor.Event) {
	if event.Type == executor.EventNodeResult && !event.OK {
		o.Log.Warn("%s: %s", event.Target, event.Message)
		return
	}
	o.Log.Debug("%s %s %s", event.Type, event.Target, event.Message)
}
