// Package dispatch selects and drives one execution strategy per validated
// request: ad-hoc command/script/upload, task, plan, apply, or puppetfile.
// It owns the run lifecycle around the strategy: interrupt handling, rerun
// persistence, and executor shutdown.
package dispatch

import (
	"github.com/benjamin-robertson/bolt/internal/executor"
	"github.com/benjamin-robertson/bolt/internal/logger"
	"github.com/benjamin-robertson/bolt/internal/output"
	"github.com/benjamin-robertson/bolt/internal/puppetfile"
	"github.com/benjamin-robertson/bolt/internal/rerun"
	"github.com/benjamin-robertson/bolt/internal/runtime"
	"github.com/benjamin-robertson/bolt/internal/target"
)

// ModuleManager is the Puppetfile collaborator.
type ModuleManager interface {
	List() ([]puppetfile.Module, error)
	Install() error
}

// RerunWriter persists per-target outcomes for a later --rerun.
type RerunWriter interface {
	Save(results []rerun.NodeResult) error
}

// Session carries the collaborators for one CLI invocation. Every dependency
// is constructed explicitly by the caller; nothing is reached through package
// globals, so tests wire in fakes the same way the CLI wires in real
// implementations.
type Session struct {
	Executor executor.Executor
	Runtime  runtime.Runtime
	Resolver *target.Resolver
	Modules  ModuleManager
	Rerun    RerunWriter
	Renderer output.Renderer
	Log      logger.Logger
}
