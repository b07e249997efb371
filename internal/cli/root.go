package cli

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/spf13/cobra"
)

// rootCmd is the base "bolt" command.
var rootCmd = &cobra.Command{
	Use:   "bolt",
	Short: "Run ad-hoc commands, tasks, and plans on remote targets",
	Long: `Bolt executes commands, scripts, tasks, and plans on remote targets
over SSH, and applies manifest code without a long-running agent.

Targets are selected with one of --nodes, --targets, --query, or --rerun.

Examples:
  bolt command run 'systemctl restart nginx' --nodes web1,web2
  bolt task run package action=install name=vim --nodes web1
  bolt plan run deploy::rollout version=1.2.3 --nodes webservers
  bolt apply site.pp --nodes web1 --noop`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and exits the process with the outcome's exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *errors.ExitError
		if !stderrors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(errors.ExitCode(err))
	}
}
