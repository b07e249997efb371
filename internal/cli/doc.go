// Package cli implements the bolt command-line interface.
//
// The package is organized around Cobra commands, with each leaf command
// building a normalized execution request and handing it to the dispatcher.
// The general structure follows a clean separation between:
//
//   - Command definitions (cobra.Command instances)
//   - Request construction and validation (internal/request)
//   - Strategy execution (internal/dispatch)
//
// # Command Structure
//
// The root command is "bolt" with subcommands for different operations:
//
//	bolt command run <cmd>        - Run a shell command on targets
//	bolt script run <path>        - Upload and run a local script
//	bolt task run|show [name]     - Run or document tasks
//	bolt plan run|show [name]     - Run or document plans
//	bolt file upload <src> <dest> - Copy a file to targets
//	bolt apply [manifest]         - Apply a manifest on targets
//	bolt puppetfile install       - Install Puppetfile modules
//	bolt puppetfile show-modules  - List Puppetfile modules
//
// # Flag Handling
//
// Targeting flags (--nodes, --targets, --query, --rerun) and the other
// cross-cutting flags are defined once on the root command and folded into
// the request by every leaf. Exactly one targeting flag may be supplied;
// request validation enforces that and the rest of the option grammar
// before any remote work begins.
//
// # Exit Codes
//
//	0 - every target succeeded
//	1 - usage, config, or logical failure (plan, apply, puppetfile)
//	2 - one or more targets failed during ad-hoc or task execution
package cli
