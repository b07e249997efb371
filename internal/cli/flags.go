package cli

import (
	"github.com/benjamin-robertson/bolt/internal/request"
)

// GlobalFlags holds the cross-cutting flags shared by every leaf command.
type GlobalFlags struct {
	Nodes   string
	Targets string
	Query   string
	Rerun   string

	Params      string
	Noop        bool
	Description string

	Boltdir       string
	ConfigFile    string
	InventoryFile string
	Modulepath    []string
	Concurrency   int

	Format  string
	Verbose bool
	Trace   bool
}

// globalFlags is bound to the root command's persistent flag set; every leaf
// command folds it into its request.
var globalFlags GlobalFlags

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVarP(&globalFlags.Nodes, "nodes", "n", "", "comma-separated nodes or groups to target")
	pf.StringVarP(&globalFlags.Targets, "targets", "t", "", "comma-separated targets or groups (alias of --nodes)")
	pf.StringVarP(&globalFlags.Query, "query", "q", "", "PuppetDB query selecting targets")
	pf.StringVar(&globalFlags.Rerun, "rerun", "", "target the previous run: success, failure, or all")

	pf.StringVarP(&globalFlags.Params, "params", "p", "", "task or plan parameters as a JSON object")
	pf.BoolVar(&globalFlags.Noop, "noop", false, "simulate changes without applying them (task run, apply)")
	pf.StringVar(&globalFlags.Description, "description", "", "description recorded with this run")

	pf.StringVar(&globalFlags.Boltdir, "boltdir", "", "project directory containing bolt.yaml")
	pf.StringVar(&globalFlags.ConfigFile, "configfile", "", "path to a bolt.yaml config file")
	pf.StringVar(&globalFlags.InventoryFile, "inventoryfile", "", "path to the inventory file")
	pf.StringSliceVarP(&globalFlags.Modulepath, "modulepath", "m", nil, "directories searched for modules")
	pf.IntVarP(&globalFlags.Concurrency, "concurrency", "c", 0, "maximum simultaneous target connections")

	pf.StringVar(&globalFlags.Format, "format", "", "output format: human or json")
	pf.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "show verbose output")
	pf.BoolVar(&globalFlags.Trace, "trace", false, "show stack traces on error")
}

// buildRequest creates a request for a leaf command and folds in the global
// flags and positional arguments. Flag conflicts (multiple targeting sources,
// --params plus key=value pairs) surface here; cross-field invariants are
// checked by Validate afterwards.
func buildRequest(sub request.Subcommand, action request.Action, args []string) (*request.ExecutionRequest, error) {
	return finishRequest(request.New(sub, action), args)
}

// finishRequest folds global flags and positionals into a request that may
// already carry command-specific fields, then validates it.
func finishRequest(req *request.ExecutionRequest, args []string) (*request.ExecutionRequest, error) {
	req.Noop = globalFlags.Noop
	req.Description = globalFlags.Description
	req.Boltdir = globalFlags.Boltdir
	req.ConfigFile = globalFlags.ConfigFile
	req.Format = globalFlags.Format
	req.Verbose = globalFlags.Verbose
	req.Trace = globalFlags.Trace

	if err := req.SetTargeting(request.TargetingNodes, globalFlags.Nodes); err != nil {
		return nil, err
	}
	if err := req.SetTargeting(request.TargetingTargets, globalFlags.Targets); err != nil {
		return nil, err
	}
	if err := req.SetTargeting(request.TargetingQuery, globalFlags.Query); err != nil {
		return nil, err
	}
	if err := req.SetTargeting(request.TargetingRerun, globalFlags.Rerun); err != nil {
		return nil, err
	}

	if err := req.SetParams(globalFlags.Params); err != nil {
		return nil, err
	}
	if err := req.ConsumePositionals(args); err != nil {
		return nil, err
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
