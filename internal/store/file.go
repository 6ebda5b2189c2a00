package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/fsutil"
	"github.com/jvs-project/taskstate/pkg/logging"
	"github.com/jvs-project/taskstate/pkg/model"
)

const recordExt = ".json"

// FileStore keeps one JSON document per task in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the records directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create records dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the records directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// RecordPath returns where the record for id is stored. Task ids may contain
// separators, so the file name is derived from a hash of the id.
func (s *FileStore) RecordPath(id model.TaskID) string {
	sum := sha256.Sum256([]byte(id))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])[:32]+recordExt)
}

// LoadPrevious reads and verifies the record for id.
func (s *FileStore) LoadPrevious(id model.TaskID) (*model.TaskRecord, error) {
	path := s.RecordPath(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("read", id, err)
	}
	rec, err := openRecord(data, path)
	if err != nil {
		return nil, err
	}
	if rec.TaskID != id {
		return nil, errclass.ErrRecordCorrupt.WithMessagef("%s: holds task %s, expected %s", path, rec.TaskID, id)
	}
	return rec, nil
}

// Save atomically replaces the record for id.
func (s *FileStore) Save(id model.TaskID, rec *model.TaskRecord) error {
	if rec.TaskID != id {
		return errclass.ErrRecordCorrupt.WithMessagef("record for %s saved under %s", rec.TaskID, id)
	}
	data, _, err := sealRecord(rec)
	if err != nil {
		return err
	}
	if err := fsutil.AtomicWrite(s.RecordPath(id), data, 0644); err != nil {
		return storeError("save", id, err)
	}
	return nil
}

// Delete removes the record for id.
func (s *FileStore) Delete(id model.TaskID) error {
	path := s.RecordPath(id)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return errclass.ErrTaskNotFound.WithMessagef("no record for %s", id)
	}
	if err := fsutil.RemoveAndSync(path); err != nil {
		return storeError("delete", id, err)
	}
	return nil
}

// List returns the task ids of all readable records.
func (s *FileStore) List() ([]model.TaskID, error) {
	var ids []model.TaskID
	err := s.eachRecord(func(path string, data []byte) {
		var head struct {
			TaskID model.TaskID `json:"task_id"`
		}
		if err := json.Unmarshal(data, &head); err != nil || head.TaskID == "" {
			logging.Warn("skipping unreadable record", map[string]any{"path": path})
			return
		}
		ids = append(ids, head.TaskID)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Verify loads every record file and reports the ones that fail.
func (s *FileStore) Verify() ([]Problem, error) {
	var problems []Problem
	err := s.eachRecord(func(path string, data []byte) {
		rec, err := openRecord(data, path)
		if err != nil {
			problems = append(problems, newProblem("", path, err))
			return
		}
		if s.RecordPath(rec.TaskID) != path {
			problems = append(problems, newProblem(rec.TaskID, path,
				errclass.ErrRecordCorrupt.WithMessagef("%s: stored under the wrong name", path)))
		}
	})
	return problems, err
}

func (s *FileStore) eachRecord(fn func(path string, data []byte)) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %w", errclass.ErrStoreIO.WithMessage("list records"), err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %w", errclass.ErrStoreIO.WithMessagef("read %s", path), err)
		}
		fn(path, data)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
