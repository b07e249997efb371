// Package rerun persists the outcome of the most recent run so a later
// invocation can re-target the same nodes with --rerun.
package rerun

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/google/uuid"
)

// Rerun tokens select which subset of the previous run to target.
const (
	TokenSuccess = "success"
	TokenFailure = "failure"
	TokenAll     = "all"
)

// RecordFileName is the record file name inside the Boltdir.
const RecordFileName = ".rerun.json"

// NodeResult is the recorded outcome for one target.
type NodeResult struct {
	Node string `json:"node"`
	OK   bool   `json:"ok"`
}

// Record is the persisted target list and per-target outcome of the most
// recent run. Written once at the end of every run, including failed runs.
type Record struct {
	RunID     string       `json:"run_id"`
	Timestamp time.Time    `json:"timestamp"`
	Results   []NodeResult `json:"results"`
}

// Store reads and writes the rerun record under a Boltdir.
type Store struct {
	path string
}

// NewStore creates a store rooted at the given Boltdir.
func NewStore(boltdir string) *Store {
	return &Store{path: filepath.Join(boltdir, RecordFileName)}
}

// Save overwrites the rerun record with the given per-target outcomes.
func (s *Store) Save(results []NodeResult) error {
	record := Record{
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Results:   results,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Failed to encode rerun record")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.WrapWithCode(err, errors.ErrFile,
			"Could not create directory for rerun record",
			"Check permissions on the Boltdir")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrFile,
			"Could not write rerun record",
			"Check permissions on "+s.path)
	}
	return nil
}

// Get returns the node names selected by a rerun token from the persisted
// record of the previous run.
func (s *Store) Get(token string) ([]string, error) {
	switch token {
	case TokenSuccess, TokenFailure, TokenAll:
	default:
		return nil, errors.New(errors.ErrTargeting,
			fmt.Sprintf("Unknown rerun token '%s'", token),
			"Valid tokens are: success, failure, all")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrTargeting,
				"No previous run to rerun",
				"Run a command, task, or plan first to create a rerun record")
		}
		return nil, errors.WrapWithCode(err, errors.ErrFile,
			"Could not read rerun record",
			"Check permissions on "+s.path)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrFile,
			"Rerun record is corrupt",
			"Delete "+s.path+" and run again")
	}

	var names []string
	for _, result := range record.Results {
		switch token {
		case TokenAll:
			names = append(names, result.Node)
		case TokenSuccess:
			if result.OK {
				names = append(names, result.Node)
			}
		case TokenFailure:
			if !result.OK {
				names = append(names, result.Node)
			}
		}
	}
	return names, nil
}
