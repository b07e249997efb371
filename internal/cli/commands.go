package cli

import (
	"context"
	"io"
	"os"

	"github.com/benjamin-robertson/bolt/internal/dispatch"
	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/benjamin-robertson/bolt/internal/output"
	"github.com/benjamin-robertson/bolt/internal/request"
	"github.com/spf13/cobra"
)

// Command-specific flags
var applyExecuteFlag string

// runDispatch builds the request for a leaf command, constructs the session,
// and runs the dispatcher.
func runDispatch(sub request.Subcommand, action request.Action, args []string) error {
	req, err := buildRequest(sub, action, args)
	if err != nil {
		return err
	}
	return dispatchRequest(req)
}

// dispatchRequest constructs the session and runs the dispatcher. A non-zero
// outcome surfaces as an ExitError so Execute can set the process exit code
// without printing anything further.
func dispatchRequest(req *request.ExecutionRequest) error {
	session, err := buildSession(req)
	if err != nil {
		return err
	}

	out, err := dispatch.New(session).Run(context.Background(), req)
	if err != nil {
		// Results go to stdout; errors go to stderr, in the selected format.
		renderError(os.Stderr, req.Format, err)
		return errors.NewExitError(errors.ExitCode(err))
	}
	if code := dispatch.ExitCode(out); code != 0 {
		return errors.NewExitError(code)
	}
	return nil
}

// renderError writes a dispatch error to w in the selected output format.
func renderError(w io.Writer, format string, err error) {
	output.New(format, w, false).RenderError(err)
}

// commandCmd groups ad-hoc command execution.
var commandCmd = &cobra.Command{
	Use:   "command",
	Short: "Run a shell command on remote targets",
}

var commandRunCmd = &cobra.Command{
	Use:   "run <command>",
	Short: "Run a shell command on remote targets",
	Long: `Run a shell command on every target and report per-target results.

Examples:
  bolt command run 'uptime' --nodes web1,web2
  bolt command run 'systemctl restart nginx' --query 'nodes[certname] {}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// A multi-word command must arrive quoted as one argument; extra
		// positionals are rejected by request validation.
		return runDispatch(request.SubCommand, request.ActionNone, args)
	},
}

// scriptCmd groups script execution.
var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Upload and run a local script on remote targets",
}

var scriptRunCmd = &cobra.Command{
	Use:   "run <path> [args...]",
	Short: "Upload and run a local script on remote targets",
	Long: `Upload a local script to every target and execute it with the given
arguments.

Examples:
  bolt script run ./deploy.sh --nodes web1,web2
  bolt script run ./check.sh --verbose -- --full`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(request.SubScript, request.ActionNone, args)
	},
}

// taskCmd groups task operations.
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Run and inspect tasks from the modulepath",
}

var taskRunCmd = &cobra.Command{
	Use:   "run <task> [parameter=value ...]",
	Short: "Run a task on remote targets",
	Long: `Run a task on every target. Parameters are passed as key=value pairs
or as a JSON object via --params.

Examples:
  bolt task run package action=install name=vim --nodes web1
  bolt task run package --params '{"action":"status","name":"vim"}' --nodes web1
  bolt task run package action=uninstall name=vim --nodes web1 --noop`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(request.SubTask, request.ActionRun, args)
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task]",
	Short: "List tasks or show a task's documentation",
	Long: `Without an argument, list every task on the modulepath. With a task
name, show its description and parameters.

Examples:
  bolt task show
  bolt task show package`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(request.SubTask, request.ActionShow, args)
	},
}

// planCmd groups plan operations.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run and inspect plans from the modulepath",
}

var planRunCmd = &cobra.Command{
	Use:   "run <plan> [parameter=value ...]",
	Short: "Run a plan",
	Long: `Run a plan. Targeting flags are optional: a plan may orchestrate its
own targets through a 'nodes' parameter, or receive targets from the command
line.

Examples:
  bolt plan run deploy::rollout version=1.2.3 --nodes webservers
  bolt plan run maintenance::cleanup`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(request.SubPlan, request.ActionRun, args)
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show [plan]",
	Short: "List plans or show a plan's documentation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(request.SubPlan, request.ActionShow, args)
	},
}

// fileCmd groups file operations.
var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Copy files to remote targets",
}

var fileUploadCmd = &cobra.Command{
	Use:   "upload <src> <dest>",
	Short: "Upload a local file to remote targets",
	Long: `Upload a local file to the destination path on every target.

Examples:
  bolt file upload ./app.conf /etc/app.conf --nodes web1,web2`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(request.SubFile, request.ActionUpload, args)
	},
}

// puppetfileCmd groups module installation.
var puppetfileCmd = &cobra.Command{
	Use:   "puppetfile",
	Short: "Manage modules declared in the project Puppetfile",
}

var puppetfileInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install modules from the Puppetfile",
	Long: `Install every module declared in the project's Puppetfile under the
Boltdir's modules directory.

Examples:
  bolt puppetfile install
  bolt puppetfile install --boltdir ./Boltdir`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(request.SubPuppetfile, request.ActionInstall, args)
	},
}

var puppetfileShowModulesCmd = &cobra.Command{
	Use:   "show-modules",
	Short: "List modules declared in the Puppetfile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(request.SubPuppetfile, request.ActionShowModules, args)
	},
}

// applyCmd applies manifest code on targets.
var applyCmd = &cobra.Command{
	Use:   "apply [manifest]",
	Short: "Apply manifest code on remote targets",
	Long: `Apply a manifest file, or inline code via --execute, on every target.
Targets are prepared with apply_prep before the manifest runs.

Examples:
  bolt apply site.pp --nodes web1,web2
  bolt apply --execute "notify { 'hello': }" --nodes web1
  bolt apply site.pp --nodes web1 --noop`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// --execute is folded in before validation, which enforces the
		// manifest-or-execute exclusivity.
		req := request.New(request.SubApply, request.ActionNone)
		req.ExecuteCode = applyExecuteFlag
		req, err := finishRequest(req, args)
		if err != nil {
			return err
		}
		return dispatchRequest(req)
	},
}

func init() {
	applyCmd.Flags().StringVarP(&applyExecuteFlag, "execute", "e", "", "inline manifest code to apply")

	commandCmd.AddCommand(commandRunCmd)
	scriptCmd.AddCommand(scriptRunCmd)
	taskCmd.AddCommand(taskRunCmd)
	taskCmd.AddCommand(taskShowCmd)
	planCmd.AddCommand(planRunCmd)
	planCmd.AddCommand(planShowCmd)
	fileCmd.AddCommand(fileUploadCmd)
	puppetfileCmd.AddCommand(puppetfileInstallCmd)
	puppetfileCmd.AddCommand(puppetfileShowModulesCmd)

	rootCmd.AddCommand(commandCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(puppetfileCmd)
	rootCmd.AddCommand(applyCmd)
}
