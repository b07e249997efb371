package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/benjamin-robertson/bolt/internal/executor"
	"github.com/benjamin-robertson/bolt/internal/puppetfile"
	"github.com/benjamin-robertson/bolt/internal/runtime"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Status symbols and colors shared across human output.
const (
	SymbolSuccess = "✓"
	SymbolFail    = "✗"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

// HumanRenderer writes line-oriented human output.
type HumanRenderer struct {
	w       io.Writer
	verbose bool
	color   bool
}

// NewHumanRenderer creates a human renderer. Styling is applied only when the
// writer is a terminal, so piped output stays free of escape sequences.
func NewHumanRenderer(w io.Writer, verbose bool) *HumanRenderer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &HumanRenderer{w: w, verbose: verbose, color: color}
}

// style applies s to text when styling is enabled.
func (r *HumanRenderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

// HandleEvent prints per-node progress as it happens.
func (r *HumanRenderer) HandleEvent(event executor.Event) {
	switch event.Type {
	case executor.EventNodeStart:
		if r.verbose {
			fmt.Fprintf(r.w, "%s Started on %s\n", r.style(mutedStyle, "…"), event.Target)
		}
	case executor.EventNodeResult:
		if event.OK {
			fmt.Fprintf(r.w, "%s Finished on %s\n", r.style(successStyle, SymbolSuccess), event.Target)
		} else {
			fmt.Fprintf(r.w, "%s Failed on %s: %s\n", r.style(failStyle, SymbolFail), event.Target, event.Message)
		}
	}
}

// RenderResults prints per-target output and a summary line.
func (r *HumanRenderer) RenderResults(verb string, rs executor.ResultSet) {
	for _, result := range rs.Results {
		if result.OK() && !r.verbose && result.Stdout == "" {
			continue
		}
		fmt.Fprintln(r.w, r.style(boldStyle, result.Target.Name+":"))
		if result.Err != nil {
			fmt.Fprintf(r.w, "  %s\n", r.style(failStyle, result.Err.Error()))
			continue
		}
		writeIndented(r.w, result.Stdout)
		if result.Stderr != "" {
			writeIndented(r.w, r.style(failStyle, strings.TrimRight(result.Stderr, "\n")))
		}
	}

	ok, failed := rs.Counts()
	symbol := r.style(successStyle, SymbolSuccess)
	if failed > 0 {
		symbol = r.style(failStyle, SymbolFail)
	}
	fmt.Fprintf(r.w, "%s %s on %d node(s): %d succeeded, %d failed %s\n",
		symbol, verb, len(rs.Results), ok, failed,
		r.style(mutedStyle, fmt.Sprintf("(%.1fs)", rs.Elapsed.Seconds())))
}

// RenderPlanResult prints per-step outcomes and the plan verdict.
func (r *HumanRenderer) RenderPlanResult(result runtime.PlanResult) {
	fmt.Fprintln(r.w, r.style(boldStyle, "Plan "+result.Plan))
	for _, step := range result.Steps {
		symbol := r.style(successStyle, SymbolSuccess)
		if !step.OK {
			symbol = r.style(failStyle, SymbolFail)
		}
		fmt.Fprintf(r.w, "  %s %s %s\n", symbol, step.Name, r.style(mutedStyle, step.Message))
	}
	elapsed := r.style(mutedStyle, fmt.Sprintf("(%.1fs)", result.Elapsed.Seconds()))
	if result.Ok() {
		fmt.Fprintf(r.w, "%s Plan completed successfully %s\n", r.style(successStyle, SymbolSuccess), elapsed)
	} else {
		fmt.Fprintf(r.w, "%s %s %s\n", r.style(failStyle, SymbolFail), result.Message, elapsed)
	}
}

// RenderTask prints one task's documentation.
func (r *HumanRenderer) RenderTask(info runtime.TaskInfo) {
	fmt.Fprintln(r.w, r.style(boldStyle, info.Name))
	if info.Description != "" {
		fmt.Fprintf(r.w, "  %s\n", info.Description)
	}
	if len(info.Parameters) > 0 {
		fmt.Fprintln(r.w, "  Parameters:")
		for _, name := range sortedParamNames(info.Parameters) {
			spec := info.Parameters[name]
			fmt.Fprintf(r.w, "    %s %s\n", name, r.style(mutedStyle, spec.Type))
		}
	}
}

// RenderTasks prints the task listing.
func (r *HumanRenderer) RenderTasks(tasks []runtime.TaskInfo) {
	for _, task := range tasks {
		fmt.Fprintf(r.w, "%-40s %s\n", task.Name, r.style(mutedStyle, task.Description))
	}
	fmt.Fprintf(r.w, "\n%d task(s) available\n", len(tasks))
}

// RenderPlan prints one plan's documentation.
func (r *HumanRenderer) RenderPlan(info runtime.PlanInfo) {
	fmt.Fprintln(r.w, r.style(boldStyle, info.Name))
	if info.Description != "" {
		fmt.Fprintf(r.w, "  %s\n", info.Description)
	}
	if len(info.Parameters) > 0 {
		fmt.Fprintln(r.w, "  Parameters:")
		for _, name := range sortedParamNames(info.Parameters) {
			spec := info.Parameters[name]
			fmt.Fprintf(r.w, "    %s %s\n", name, r.style(mutedStyle, spec.Type))
		}
	}
}

// RenderPlans prints the plan listing.
func (r *HumanRenderer) RenderPlans(plans []runtime.PlanInfo) {
	for _, plan := range plans {
		fmt.Fprintf(r.w, "%-40s %s\n", plan.Name, r.style(mutedStyle, plan.Description))
	}
	fmt.Fprintf(r.w, "\n%d plan(s) available\n", len(plans))
}

// RenderModules prints the installed-module listing.
func (r *HumanRenderer) RenderModules(modules []puppetfile.Module) {
	for _, mod := range modules {
		version := mod.Version
		if version == "" {
			version = "(unversioned)"
		}
		fmt.Fprintf(r.w, "%-40s %s\n", mod.Name, r.style(mutedStyle, version))
	}
}

// RenderMessage prints a plain informational line.
func (r *HumanRenderer) RenderMessage(message string) {
	fmt.Fprintln(r.w, message)
}

// RenderError prints a formatted error.
func (r *HumanRenderer) RenderError(err error) {
	fmt.Fprintln(r.w, err.Error())
}

func writeIndented(w io.Writer, text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

func sortedParamNames(params map[string]runtime.ParamSpec) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
