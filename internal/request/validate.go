package request

import (
	"fmt"
	"regexp"

	"github.com/benjamin-robertson/bolt/internal/errors"
)

// namespacedName matches task/plan names: lowercase identifier segments
// joined by "::", e.g. "package" or "deploy::rollout".
var namespacedName = regexp.MustCompile(`^[a-z][a-z0-9_]*(::[a-z][a-z0-9_]*)*$`)

// Validate enforces the request grammar and cross-field invariants in a fixed
// order, failing fast with a descriptive error before any remote work.
func (r *ExecutionRequest) Validate() error {
	if err := r.validateGrammar(); err != nil {
		return err
	}
	if err := r.validateLeftovers(); err != nil {
		return err
	}
	if err := r.validateObject(); err != nil {
		return err
	}
	if err := r.validateConfigSource(); err != nil {
		return err
	}
	if err := r.validateNoop(); err != nil {
		return err
	}
	if err := r.validateApply(); err != nil {
		return err
	}
	return r.validateTargeting()
}

func (r *ExecutionRequest) validateGrammar() error {
	switch r.Subcommand {
	case SubCommand, SubScript, SubTask, SubPlan, SubFile, SubPuppetfile, SubApply:
	default:
		return errors.New(errors.ErrUsage,
			fmt.Sprintf("'%s' is not a bolt command", r.Subcommand),
			"Run 'bolt help' for the list of commands")
	}

	actions := Actions(r.Subcommand)
	if len(actions) == 0 {
		if r.Action != ActionNone {
			return errors.New(errors.ErrUsage,
				fmt.Sprintf("'%s' does not take an action", r.Subcommand),
				fmt.Sprintf("Run 'bolt help %s' for usage", r.Subcommand))
		}
		return nil
	}

	for _, a := range actions {
		if r.Action == a {
			return nil
		}
	}
	valid := ""
	for i, a := range actions {
		if i > 0 {
			valid += ", "
		}
		valid += string(a)
	}
	return errors.New(errors.ErrUsage,
		fmt.Sprintf("Expected an action for '%s'", r.Subcommand),
		fmt.Sprintf("Valid actions are: %s", valid))
}

func (r *ExecutionRequest) validateLeftovers() error {
	// file uses leftovers as the upload destination, script as script
	// arguments; everything else must consume all positionals.
	if r.Subcommand == SubFile || r.Subcommand == SubScript {
		return nil
	}
	if len(r.LeftoverArgs) > 0 {
		return errors.New(errors.ErrUsage,
			fmt.Sprintf("Unknown argument(s) %v", r.LeftoverArgs),
			fmt.Sprintf("Run 'bolt help %s' for usage", r.Subcommand))
	}
	return nil
}

func (r *ExecutionRequest) validateObject() error {
	if r.Action != ActionRun || (r.Subcommand != SubTask && r.Subcommand != SubPlan) {
		return nil
	}
	if r.Object == "" {
		return errors.New(errors.ErrUsage,
			fmt.Sprintf("Must specify a %s to run", r.Subcommand),
			fmt.Sprintf("Usage: bolt %s run <name> [parameters]", r.Subcommand))
	}
	if !namespacedName.MatchString(r.Object) {
		return errors.New(errors.ErrUsage,
			fmt.Sprintf("Invalid %s name '%s'", r.Subcommand, r.Object),
			"Names are lowercase identifier segments joined by '::', e.g. mymodule::mytask")
	}
	return nil
}

func (r *ExecutionRequest) validateConfigSource() error {
	if r.Boltdir != "" && r.ConfigFile != "" {
		return errors.New(errors.ErrConfig,
			"--boltdir and --configfile cannot be used together",
			"Use --boltdir to point at a project directory, or --configfile at a bolt.yaml, but not both")
	}
	return nil
}

func (r *ExecutionRequest) validateNoop() error {
	if !r.Noop {
		return nil
	}
	if (r.Subcommand == SubTask && r.Action == ActionRun) || r.Subcommand == SubApply {
		return nil
	}
	return errors.New(errors.ErrUsage,
		"--noop is only valid for 'task run' and 'apply'",
		"Remove --noop, or use it with a task run or apply invocation")
}

func (r *ExecutionRequest) validateApply() error {
	if r.Subcommand != SubApply {
		return nil
	}
	hasManifest := r.Object != ""
	hasCode := r.ExecuteCode != ""
	if hasManifest == hasCode {
		if hasManifest {
			return errors.New(errors.ErrUsage,
				"--execute is unsupported when specifying a manifest file",
				"Pass either a manifest file or --execute <code>, not both")
		}
		return errors.New(errors.ErrUsage,
			"a manifest file or --execute is required",
			"Usage: bolt apply <manifest.pp> | bolt apply --execute <code>")
	}
	return nil
}

func (r *ExecutionRequest) validateTargeting() error {
	if r.Targeting.Kind != TargetingNone {
		return nil
	}
	// Plans may orchestrate without direct targets; show actions and
	// puppetfile operations never touch remote targets.
	if r.Subcommand == SubPlan || r.Subcommand == SubPuppetfile {
		return nil
	}
	if r.Action == ActionShow {
		return nil
	}
	return errors.New(errors.ErrTargeting,
		"Targets must be specified",
		"Use one of --nodes, --targets, --query, or --rerun")
}

// NeedsTargets reports whether the request requires resolved targets before
// dispatch. Read-only show actions and puppetfile operations skip resolution.
func (r *ExecutionRequest) NeedsTargets() bool {
	if r.Subcommand == SubPuppetfile {
		return false
	}
	if r.Action == ActionShow || r.Action == ActionShowModules {
		return false
	}
	if r.Subcommand == SubPlan && r.Targeting.Kind == TargetingNone {
		return false
	}
	return true
}
