// Package request defines the normalized execution request built from
// command-line input, plus the validation rules applied to it before any
// remote work begins.
package request

import (
	"encoding/json"
	"strings"

	"github.com/benjamin-robertson/bolt/internal/errors"
)

// Subcommand identifies the top-level operation.
type Subcommand string

const (
	SubCommand    Subcommand = "command"
	SubScript     Subcommand = "script"
	SubTask       Subcommand = "task"
	SubPlan       Subcommand = "plan"
	SubFile       Subcommand = "file"
	SubPuppetfile Subcommand = "puppetfile"
	SubApply      Subcommand = "apply"
)

// Action identifies the per-subcommand action.
type Action string

const (
	ActionNone        Action = ""
	ActionRun         Action = "run"
	ActionShow        Action = "show"
	ActionUpload      Action = "upload"
	ActionInstall     Action = "install"
	ActionShowModules Action = "show-modules"
)

// Actions returns the valid action set for a subcommand. Subcommands with an
// empty set take no action; their first positional is the object.
func Actions(sub Subcommand) []Action {
	switch sub {
	case SubTask, SubPlan:
		return []Action{ActionShow, ActionRun}
	case SubFile:
		return []Action{ActionUpload}
	case SubPuppetfile:
		return []Action{ActionInstall, ActionShowModules}
	default:
		return nil
	}
}

// TargetingKind tags which targeting source was supplied.
type TargetingKind int

const (
	TargetingNone TargetingKind = iota
	TargetingNodes
	TargetingTargets
	TargetingQuery
	TargetingRerun
)

// Targeting holds the single targeting source for a request.
type Targeting struct {
	Kind  TargetingKind
	Value string // node list, target list, query string, or rerun token
}

// ExecutionRequest is the normalized form of one CLI invocation. It is built
// incrementally by the option grammar and passes through validation, target
// resolution, and dispatch before being discarded at process exit.
type ExecutionRequest struct {
	Subcommand Subcommand
	Action     Action
	Object     string

	// TaskOptions holds task/plan parameters. ParamsParsed records whether
	// they came from --params (already structured JSON values) or from
	// key=value pairs (strings that still need coercion against the task's
	// parameter schema).
	TaskOptions  map[string]interface{}
	ParamsParsed bool

	LeftoverArgs []string
	Targeting    Targeting

	Noop        bool
	Description string
	ExecuteCode string // apply --execute inline code

	Boltdir    string
	ConfigFile string

	Format  string
	Verbose bool
	Trace   bool
}

// New creates an empty request for the given subcommand and action.
func New(sub Subcommand, action Action) *ExecutionRequest {
	return &ExecutionRequest{
		Subcommand:  sub,
		Action:      action,
		TaskOptions: map[string]interface{}{},
	}
}

// ConsumePositionals partitions positional arguments after the
// subcommand/action have been consumed: the first token becomes the object,
// subsequent identifier=value tokens fold into TaskOptions for tasks and
// plans, and everything else lands in LeftoverArgs. Script arguments are
// never parsed as parameters even when they contain '='.
func (r *ExecutionRequest) ConsumePositionals(args []string) error {
	rest := args
	if r.Object == "" && len(rest) > 0 {
		r.Object = rest[0]
		rest = rest[1:]
	}

	takesParams := r.Subcommand == SubTask || r.Subcommand == SubPlan
	for _, arg := range rest {
		if key, value, ok := splitPair(arg); ok && takesParams {
			if r.ParamsParsed {
				return errors.New(errors.ErrUsage,
					"Parameters must not be specified both with --params and as key=value pairs",
					"Pass all parameters either via --params or as key=value arguments")
			}
			r.TaskOptions[key] = value
			continue
		}
		r.LeftoverArgs = append(r.LeftoverArgs, arg)
	}
	return nil
}

// SetParams decodes a --params JSON object into TaskOptions. Conflicts with
// any key=value pair already consumed.
func (r *ExecutionRequest) SetParams(raw string) error {
	if raw == "" {
		return nil
	}
	if len(r.TaskOptions) > 0 {
		return errors.New(errors.ErrUsage,
			"Parameters must not be specified both with --params and as key=value pairs",
			"Pass all parameters either via --params or as key=value arguments")
	}

	params := map[string]interface{}{}
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return errors.WrapWithCode(err, errors.ErrUsage,
			"Invalid JSON passed to --params",
			"Pass a JSON object, e.g. --params '{\"version\":\"1.2.3\"}'")
	}
	r.TaskOptions = params
	r.ParamsParsed = true
	return nil
}

// SetTargeting records a targeting source, failing if one is already set.
// The error names all four targeting flag forms.
func (r *ExecutionRequest) SetTargeting(kind TargetingKind, value string) error {
	if value == "" {
		return nil
	}
	if r.Targeting.Kind != TargetingNone {
		return errors.New(errors.ErrTargeting,
			"Only one targeting option may be specified",
			"Use exactly one of --nodes, --targets, --query, or --rerun")
	}
	r.Targeting = Targeting{Kind: kind, Value: value}
	return nil
}

// splitPair splits an identifier=value token. The identifier must start with
// a letter or underscore; tokens like "=x" or "2=3" are left as leftovers.
func splitPair(arg string) (key, value string, ok bool) {
	idx := strings.Index(arg, "=")
	if idx <= 0 {
		return "", "", false
	}
	key = arg[:idx]
	for i, c := range key {
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case i > 0 && c >= '0' && c <= '9':
		default:
			return "", "", false
		}
	}
	return key, arg[idx+1:], true
}
