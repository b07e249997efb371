package config

import (
	"os"
	"path/filepath"

	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/spf13/viper"
)

// Load reads config from the given bolt.yaml path. An empty path returns
// defaults with the Boltdir resolved from the working directory.
func Load(path string) (*Config, error) {
	if path == "" {
		boltdir, err := FindBoltdir("")
		if err != nil {
			return nil, err
		}
		candidate := filepath.Join(boltdir, ConfigFileName)
		if _, err := os.Stat(candidate); err != nil {
			cfg := DefaultConfig()
			cfg.Boltdir = boltdir
			return cfg, nil
		}
		path = candidate
	}

	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found: "+path,
				"Check the path passed to --configfile")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config file: "+path,
			"Check field names and value types in "+ConfigFileName)
	}

	cfg.Boltdir = filepath.Dir(path)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBoltdir reads config from bolt.yaml inside the given Boltdir,
// falling back to defaults when the file does not exist.
func LoadBoltdir(boltdir string) (*Config, error) {
	info, err := os.Stat(boltdir)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Boltdir not found: "+boltdir,
			"Check the path passed to --boltdir")
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrConfig,
			"Boltdir is not a directory: "+boltdir,
			"Pass a project directory to --boltdir")
	}

	candidate := filepath.Join(boltdir, ConfigFileName)
	if _, err := os.Stat(candidate); err != nil {
		cfg := DefaultConfig()
		cfg.Boltdir = boltdir
		return cfg, nil
	}
	return Load(candidate)
}

// FindBoltdir locates the project Boltdir:
//  1. Explicit path (from --boltdir)
//  2. Boltdir/ in the current directory or any parent
//  3. ~/.puppetlabs/bolt as the user-level default
func FindBoltdir(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	dir := cwd
	for {
		candidate := filepath.Join(dir, DefaultBoltdirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine home directory",
			"Set HOME or pass --boltdir explicitly")
	}
	return filepath.Join(home, ".puppetlabs", "bolt"), nil
}

// Validate checks loaded config values for consistency.
func Validate(cfg *Config) error {
	if cfg.Concurrency < 1 {
		return errors.New(errors.ErrConfig,
			"Concurrency must be at least 1",
			"Set a positive 'concurrency' value in "+ConfigFileName)
	}
	if cfg.Format != "" && cfg.Format != "human" && cfg.Format != "json" {
		return errors.New(errors.ErrConfig,
			"Unknown output format: "+cfg.Format,
			"Valid formats are: human, json")
	}
	if cfg.Transport.Port < 0 || cfg.Transport.Port > 65535 {
		return errors.New(errors.ErrConfig,
			"Invalid transport port",
			"Ports must be between 0 and 65535")
	}
	return nil
}
