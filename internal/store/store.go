// Package store persists task execution records between builds.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/jvs-project/taskstate/pkg/config"
	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/jsonutil"
	"github.com/jvs-project/taskstate/pkg/model"
)

// Store keeps at most one record per task: the one written by the last
// successful execution.
type Store interface {
	// LoadPrevious returns the stored record, or nil if the task has none.
	LoadPrevious(id model.TaskID) (*model.TaskRecord, error)
	// Save replaces the stored record for id.
	Save(id model.TaskID, rec *model.TaskRecord) error
	// Delete removes the stored record. Missing records are E_TASK_NOT_FOUND.
	Delete(id model.TaskID) error
	// List returns the ids of all stored records, sorted.
	List() ([]model.TaskID, error)
	// Verify checks every stored record and reports the ones that fail.
	Verify() ([]Problem, error)
	Close() error
}

// Problem describes a stored record that cannot be loaded.
type Problem struct {
	TaskID   model.TaskID `json:"task_id,omitempty"`
	Location string       `json:"location"`
	Err      error        `json:"-"`
	Message  string       `json:"error"`
}

func newProblem(id model.TaskID, location string, err error) Problem {
	return Problem{TaskID: id, Location: location, Err: err, Message: err.Error()}
}

// Open returns the backend selected by cfg for the given project root.
func Open(projectRoot string, cfg *config.Config) (Store, error) {
	path := cfg.StorePath(projectRoot)
	switch cfg.Store.Backend {
	case model.StoreBackendFile:
		return NewFileStore(path)
	case model.StoreBackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, errclass.ErrConfigInvalid.WithMessagef("unknown store backend %q", cfg.Store.Backend)
	}
}

// sealRecord returns rec encoded with its checksum filled in. rec itself is
// not modified.
func sealRecord(rec *model.TaskRecord) ([]byte, model.HashValue, error) {
	sealed := *rec
	sealed.Checksum = ""
	sum, err := jsonutil.Checksum(&sealed)
	if err != nil {
		return nil, "", fmt.Errorf("checksum record: %w", err)
	}
	sealed.Checksum = model.HashValue(sum)

	data, err := json.MarshalIndent(&sealed, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal record: %w", err)
	}
	return data, sealed.Checksum, nil
}

// openRecord decodes data and verifies format version and checksum.
func openRecord(data []byte, location string) (*model.TaskRecord, error) {
	var head struct {
		FormatVersion int `json:"format_version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errclass.ErrRecordCorrupt.WithMessagef("%s: %v", location, err)
	}
	if head.FormatVersion != model.RecordFormatVersion {
		return nil, errclass.ErrFormatUnsupported.WithMessagef("%s: format version %d (supported: %d)",
			location, head.FormatVersion, model.RecordFormatVersion)
	}

	var rec model.TaskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errclass.ErrRecordCorrupt.WithMessagef("%s: %v", location, err)
	}

	want := rec.Checksum
	rec.Checksum = ""
	got, err := jsonutil.Checksum(&rec)
	if err != nil {
		return nil, errclass.ErrRecordCorrupt.WithMessagef("%s: %v", location, err)
	}
	if model.HashValue(got) != want {
		return nil, errclass.ErrRecordCorrupt.WithMessagef("%s: checksum mismatch", location)
	}
	rec.Checksum = want
	if rec.InputFiles == nil {
		rec.InputFiles = make(map[string]model.Snapshot)
	}
	if rec.OutputFiles == nil {
		rec.OutputFiles = make(map[string]model.Snapshot)
	}
	return &rec, nil
}

func storeError(op string, id model.TaskID, err error) error {
	return fmt.Errorf("%w: %w", errclass.ErrStoreIO.WithMessagef("%s %s", op, id), err)
}
