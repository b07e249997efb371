package target

import (
	"strings"

	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/benjamin-robertson/bolt/internal/request"
)

// CertnameQuerier resolves a query string into node identifiers through an
// external queryable store (PuppetDB).
type CertnameQuerier interface {
	QueryCertnames(query string) ([]string, error)
}

// RerunReader reads the target list selected by a rerun token from the
// persisted record of the previous run.
type RerunReader interface {
	Get(token string) ([]string, error)
}

// Resolver turns a request's targeting source into an ordered target set.
type Resolver struct {
	Inventory Inventory
	Query     CertnameQuerier
	Rerun     RerunReader
}

// Resolve produces the concrete target set for the request. Requests that do
// not need targets (show actions, puppetfile, untargeted plans) resolve to an
// empty set without touching any collaborator.
func (r *Resolver) Resolve(req *request.ExecutionRequest) ([]Target, error) {
	if !req.NeedsTargets() {
		return nil, nil
	}

	var names []string
	switch req.Targeting.Kind {
	case request.TargetingNodes, request.TargetingTargets:
		names = splitList(req.Targeting.Value)
	case request.TargetingQuery:
		if r.Query == nil {
			return nil, errors.New(errors.ErrConfig,
				"--query requires a configured PuppetDB",
				"Set puppetdb.server_url in bolt.yaml")
		}
		queried, err := r.Query.QueryCertnames(req.Targeting.Value)
		if err != nil {
			return nil, err
		}
		names = queried
	case request.TargetingRerun:
		recorded, err := r.Rerun.Get(req.Targeting.Value)
		if err != nil {
			return nil, err
		}
		names = recorded
	default:
		return nil, errors.New(errors.ErrTargeting,
			"Targets must be specified",
			"Use one of --nodes, --targets, --query, or --rerun")
	}

	if len(names) == 0 {
		return nil, errors.New(errors.ErrTargeting,
			"Targeting option matched no targets",
			"Check the node list, query, or rerun token")
	}
	return r.Inventory.GetTargets(names)
}

// splitList splits a comma-separated node list, dropping empty entries.
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}
