package cli

import (
	"os"
	"path/filepath"

	"github.com/benjamin-robertson/bolt/internal/config"
	"github.com/benjamin-robertson/bolt/internal/dispatch"
	"github.com/benjamin-robertson/bolt/internal/executor"
	"github.com/benjamin-robertson/bolt/internal/logger"
	"github.com/benjamin-robertson/bolt/internal/output"
	"github.com/benjamin-robertson/bolt/internal/puppetdb"
	"github.com/benjamin-robertson/bolt/internal/puppetfile"
	"github.com/benjamin-robertson/bolt/internal/request"
	"github.com/benjamin-robertson/bolt/internal/rerun"
	"github.com/benjamin-robertson/bolt/internal/runtime"
	"github.com/benjamin-robertson/bolt/internal/target"
	"github.com/benjamin-robertson/bolt/internal/transport"
)

// buildSession constructs every collaborator for one invocation: config,
// inventory, transport, executor, runtime, rerun store, and renderer. All
// wiring is explicit; the dispatcher only sees interfaces.
func buildSession(req *request.ExecutionRequest) (*dispatch.Session, error) {
	cfg, err := loadConfig(req)
	if err != nil {
		return nil, err
	}

	// Flags override file config.
	if globalFlags.InventoryFile != "" {
		cfg.InventoryFile = globalFlags.InventoryFile
	}
	if len(globalFlags.Modulepath) > 0 {
		cfg.Modulepath = globalFlags.Modulepath
	}
	if globalFlags.Concurrency > 0 {
		cfg.Concurrency = globalFlags.Concurrency
	}
	format := cfg.Format
	if req.Format != "" {
		format = req.Format
	}

	log := logger.NewEnvLogger("bolt")

	inventoryPath := cfg.InventoryFile
	if inventoryPath == "" {
		inventoryPath = filepath.Join(cfg.Boltdir, "inventory.yaml")
	}
	inv, err := target.LoadInventory(inventoryPath, cfg.Transport)
	if err != nil {
		return nil, err
	}

	store := rerun.NewStore(cfg.Boltdir)
	resolver := &target.Resolver{Inventory: inv, Rerun: store}
	if cfg.PuppetDB.ServerURL != "" {
		resolver.Query = puppetdb.NewClient(cfg.PuppetDB)
	}

	dialer := transport.NewSSHDialer(cfg.Transport)
	exec := executor.NewSSHExecutor(dialer, cfg.Concurrency,
		executor.WithLogger(log),
		executor.WithTmpdir(cfg.Transport.Tmpdir))

	rt := runtime.NewModulepathRuntime(resolveModulepath(cfg), exec, inv)

	return &dispatch.Session{
		Executor: exec,
		Runtime:  rt,
		Resolver: resolver,
		Modules:  puppetfile.NewInstaller(cfg.Boltdir, log),
		Rerun:    store,
		Renderer: output.New(format, os.Stdout, req.Verbose),
		Log:      log,
	}, nil
}

// loadConfig resolves the config source: --configfile, --boltdir, or Boltdir
// discovery from the working directory. The two flags are mutually exclusive,
// enforced by request validation.
func loadConfig(req *request.ExecutionRequest) (*config.Config, error) {
	switch {
	case req.ConfigFile != "":
		return config.Load(req.ConfigFile)
	case req.Boltdir != "":
		return config.LoadBoltdir(req.Boltdir)
	default:
		return config.Load("")
	}
}

// resolveModulepath anchors relative modulepath entries at the Boltdir.
func resolveModulepath(cfg *config.Config) []string {
	resolved := make([]string, len(cfg.Modulepath))
	for i, dir := range cfg.Modulepath {
		if filepath.IsAbs(dir) {
			resolved[i] = dir
		} else {
			resolved[i] = filepath.Join(cfg.Boltdir, dir)
		}
	}
	return resolved
}
