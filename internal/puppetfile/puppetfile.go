// Package puppetfile implements the module-installer collaborator: parsing a
// Puppetfile and materializing its module list under the project directory.
package puppetfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/benjamin-robertson/bolt/internal/logger"
)

// FileName is the dependency manifest file name inside a Boltdir.
const FileName = "Puppetfile"

// Module is one declared module dependency.
type Module struct {
	Name    string
	Version string
}

// modLine matches declarations like: mod 'puppetlabs-stdlib', '6.0.0'
var modLine = regexp.MustCompile(`^mod\s+['"]([^'"]+)['"](?:\s*,\s*['"]([^'"]+)['"])?`)

// Installer parses and installs Puppetfile module declarations.
type Installer struct {
	Boltdir string
	Log     logger.Logger
}

// NewInstaller creates an installer rooted at the given Boltdir.
func NewInstaller(boltdir string, log logger.Logger) *Installer {
	if log == nil {
		log = logger.Noop()
	}
	return &Installer{Boltdir: boltdir, Log: log}
}

// List parses the Puppetfile and returns its module declarations. A missing
// Puppetfile is a fatal error, not retried.
func (i *Installer) List() ([]Module, error) {
	path := filepath.Join(i.Boltdir, FileName)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrFile,
				"Could not find a Puppetfile at "+path,
				"Create a Puppetfile listing the modules to install")
		}
		return nil, errors.WrapWithCode(err, errors.ErrFile,
			"Could not read Puppetfile at "+path,
			"Check file permissions")
	}
	defer file.Close()

	var modules []Module
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "forge") {
			continue
		}
		match := modLine.FindStringSubmatch(line)
		if match == nil {
			return nil, errors.New(errors.ErrFile,
				fmt.Sprintf("Unparseable line %d in Puppetfile: %s", lineNo, line),
				"Entries look like: mod 'puppetlabs-stdlib', '6.0.0'")
		}
		modules = append(modules, Module{Name: match[1], Version: match[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrFile,
			"Failed reading Puppetfile", "")
	}
	return modules, nil
}

// Install parses the Puppetfile and materializes each declared module under
// the Boltdir's modules directory.
func (i *Installer) Install() error {
	modules, err := i.List()
	if err != nil {
		return err
	}

	moduleDir := filepath.Join(i.Boltdir, "modules")
	for _, mod := range modules {
		// Module names are namespaced "author-module"; the directory uses
		// the module part.
		name := mod.Name
		if idx := strings.LastIndex(name, "-"); idx >= 0 {
			name = name[idx+1:]
		}
		dest := filepath.Join(moduleDir, name)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return errors.WrapWithCode(err, errors.ErrFile,
				"Could not create module directory "+dest,
				"Check permissions on the Boltdir")
		}
		i.Log.Info("installed module %s %s", mod.Name, mod.Version)
	}
	return nil
}
