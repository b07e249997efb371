package config

import "time"

// ConfigFileName is the config file name inside a Boltdir.
const ConfigFileName = "bolt.yaml"

// DefaultBoltdirName is the per-project Boltdir directory name.
const DefaultBoltdirName = "Boltdir"

// Config represents the complete bolt.yaml configuration file.
type Config struct {
	// Concurrency caps how many targets the executor operates on at once.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`

	// Modulepath lists directories searched for task and plan modules.
	Modulepath []string `yaml:"modulepath" mapstructure:"modulepath"`

	// InventoryFile is the inventory file path (defaults to inventory.yaml
	// inside the Boltdir).
	InventoryFile string `yaml:"inventoryfile" mapstructure:"inventoryfile"`

	// Format selects the renderer: "human" or "json".
	Format string `yaml:"format" mapstructure:"format"`

	// Transport holds connection defaults applied to targets that do not
	// override them in the inventory.
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`

	// PuppetDB configures the queryable store used by --query.
	PuppetDB PuppetDBConfig `yaml:"puppetdb" mapstructure:"puppetdb"`

	// Boltdir is the resolved project directory. Not read from the file;
	// filled in by the loader so downstream components can locate the
	// rerun record and module installation path.
	Boltdir string `yaml:"-" mapstructure:"-"`
}

// TransportConfig holds SSH connection defaults.
type TransportConfig struct {
	User           string        `yaml:"user" mapstructure:"user"`
	Port           int           `yaml:"port" mapstructure:"port"`
	PrivateKey     string        `yaml:"private-key" mapstructure:"private-key"`
	ConnectTimeout time.Duration `yaml:"connect-timeout" mapstructure:"connect-timeout"`
	RunAs          string        `yaml:"run-as" mapstructure:"run-as"`
	Tmpdir         string        `yaml:"tmpdir" mapstructure:"tmpdir"`
}

// PuppetDBConfig holds connection settings for the PuppetDB query API.
type PuppetDBConfig struct {
	ServerURL string `yaml:"server_url" mapstructure:"server_url"`
	Token     string `yaml:"token" mapstructure:"token"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Concurrency: 100,
		Modulepath:  []string{"modules", "site-modules"},
		Format:      "human",
		Transport: TransportConfig{
			Port:           22,
			ConnectTimeout: 10 * time.Second,
			Tmpdir:         "/tmp",
		},
	}
}
