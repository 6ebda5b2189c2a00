package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_records (
    task_id         TEXT PRIMARY KEY,
    format_version  INTEGER NOT NULL,
    record          BLOB NOT NULL,
    checksum        TEXT NOT NULL,
    updated_at      INTEGER NOT NULL
);
`

// SQLiteStore keeps all records in a single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

// LoadPrevious reads and verifies the record for id.
func (s *SQLiteStore) LoadPrevious(id model.TaskID) (*model.TaskRecord, error) {
	var (
		data     []byte
		checksum string
	)
	err := s.db.QueryRow(`SELECT record, checksum FROM task_records WHERE task_id = ?`, string(id)).
		Scan(&data, &checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("read", id, err)
	}
	return s.open(id, data, checksum)
}

func (s *SQLiteStore) open(id model.TaskID, data []byte, checksum string) (*model.TaskRecord, error) {
	location := fmt.Sprintf("%s[%s]", s.path, id)
	rec, err := openRecord(data, location)
	if err != nil {
		return nil, err
	}
	if string(rec.Checksum) != checksum {
		return nil, errclass.ErrRecordCorrupt.WithMessagef("%s: checksum column does not match record", location)
	}
	if rec.TaskID != id {
		return nil, errclass.ErrRecordCorrupt.WithMessagef("%s: holds task %s", location, rec.TaskID)
	}
	return rec, nil
}

// Save upserts the record for id.
func (s *SQLiteStore) Save(id model.TaskID, rec *model.TaskRecord) error {
	if rec.TaskID != id {
		return errclass.ErrRecordCorrupt.WithMessagef("record for %s saved under %s", rec.TaskID, id)
	}
	data, checksum, err := sealRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO task_records (task_id, format_version, record, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			format_version = excluded.format_version,
			record = excluded.record,
			checksum = excluded.checksum,
			updated_at = excluded.updated_at`,
		string(id), rec.FormatVersion, data, string(checksum), time.Now().UnixNano(),
	)
	if err != nil {
		return storeError("save", id, err)
	}
	return nil
}

// Delete removes the record for id.
func (s *SQLiteStore) Delete(id model.TaskID) error {
	res, err := s.db.Exec(`DELETE FROM task_records WHERE task_id = ?`, string(id))
	if err != nil {
		return storeError("delete", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("delete", id, err)
	}
	if n == 0 {
		return errclass.ErrTaskNotFound.WithMessagef("no record for %s", id)
	}
	return nil
}

// List returns all stored task ids, sorted.
func (s *SQLiteStore) List() ([]model.TaskID, error) {
	rows, err := s.db.Query(`SELECT task_id FROM task_records ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errclass.ErrStoreIO.WithMessage("list records"), err)
	}
	defer rows.Close()

	var ids []model.TaskID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		ids = append(ids, model.TaskID(id))
	}
	return ids, rows.Err()
}

// Verify loads every row and reports the ones that fail.
func (s *SQLiteStore) Verify() ([]Problem, error) {
	rows, err := s.db.Query(`SELECT task_id, record, checksum FROM task_records ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errclass.ErrStoreIO.WithMessage("verify records"), err)
	}
	defer rows.Close()

	var problems []Problem
	for rows.Next() {
		var (
			id       string
			data     []byte
			checksum string
		)
		if err := rows.Scan(&id, &data, &checksum); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if _, err := s.open(model.TaskID(id), data, checksum); err != nil {
			problems = append(problems, newProblem(model.TaskID(id), s.path, err))
		}
	}
	return problems, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
