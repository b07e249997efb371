// Package target defines the addressable remote endpoints bolt operates
// against, the inventory that materializes them, and the resolver that turns
// a request's targeting source into a concrete ordered target set.
package target

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benjamin-robertson/bolt/internal/errors"
)

// Target represents one addressable remote endpoint plus its connection
// metadata. Targets are produced by the inventory and treated as immutable
// by everything downstream.
type Target struct {
	Name      string // identifier as given in the inventory or on the CLI
	Host      string // hostname or IP address
	User      string
	Port      int
	Transport string // currently always "ssh"
}

// String returns the target's display identifier.
func (t Target) String() string {
	return t.Name
}

// ParseSpec parses a target specification in the form "[user@]host[:port]".
func ParseSpec(spec string) (Target, error) {
	t := Target{Name: spec, Transport: "ssh", Port: 22}

	rest := spec
	if idx := strings.Index(rest, "@"); idx >= 0 {
		t.User = rest[:idx]
		rest = rest[idx+1:]
	}
	if idx := strings.LastIndex(rest, ":"); idx >= 0 {
		port, err := strconv.Atoi(rest[idx+1:])
		if err != nil || port < 1 || port > 65535 {
			return Target{}, errors.New(errors.ErrTargeting,
				fmt.Sprintf("Invalid port in target '%s'", spec),
				"Targets look like host, user@host, or user@host:port")
		}
		t.Port = port
		rest = rest[:idx]
	}
	if rest == "" {
		return Target{}, errors.New(errors.ErrTargeting,
			fmt.Sprintf("Invalid target '%s'", spec),
			"Targets look like host, user@host, or user@host:port")
	}
	t.Host = rest
	return t, nil
}

// Names returns the identifiers of the given targets, in order.
func Names(targets []Target) []string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Name
	}
	return names
}
