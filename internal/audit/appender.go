// Package audit keeps a hash-chained JSONL log of task outcomes and record
// deletions.
package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/jsonutil"
	"github.com/jvs-project/taskstate/pkg/model"
)

// maxLineSize bounds a single audit line; details are small maps.
const maxLineSize = 1 << 20

// FileAppender appends audit records to a JSONL file with hash chain.
type FileAppender struct {
	path string
	mu   sync.Mutex
}

// NewFileAppender creates a new FileAppender.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path}
}

// Path returns the log file location.
func (a *FileAppender) Path() string {
	return a.path
}

// Append adds a new audit record to the log.
func (a *FileAppender) Append(eventType model.AuditEventType, taskID model.TaskID, executionID string, details map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("flock audit log: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}

	record := &model.AuditRecord{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		TaskID:      taskID,
		ExecutionID: executionID,
		Details:     details,
		PrevHash:    prevHash,
	}
	recordHash, err := computeRecordHash(record)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}
	record.RecordHash = recordHash

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

// GetLastRecordHash returns the hash of the last record in the log.
func (a *FileAppender) GetLastRecordHash() (model.HashValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	return lastRecordHash(file)
}

// Records returns every record in the log, oldest first. If taskID is not
// empty only that task's records are returned.
func (a *FileAppender) Records(taskID model.TaskID) ([]model.AuditRecord, error) {
	var out []model.AuditRecord
	err := a.scan(func(lineNo int, rec model.AuditRecord) error {
		if taskID == "" || rec.TaskID == taskID {
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Verify walks the log and checks that every record hash is correct and
// links to its predecessor. It returns the number of records checked.
func (a *FileAppender) Verify() (int, error) {
	var (
		prev  model.HashValue
		count int
	)
	err := a.scan(func(lineNo int, rec model.AuditRecord) error {
		if rec.PrevHash != prev {
			return errclass.ErrAuditChainBroken.WithMessagef("line %d: prev_hash does not match preceding record", lineNo)
		}
		want, err := computeRecordHash(&rec)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if want != rec.RecordHash {
			return errclass.ErrAuditChainBroken.WithMessagef("line %d: record_hash mismatch", lineNo)
		}
		prev = rec.RecordHash
		count++
		return nil
	})
	return count, err
}

func (a *FileAppender) scan(fn func(lineNo int, rec model.AuditRecord) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		rec, err := decodeRecord(scanner.Bytes())
		if err != nil {
			return errclass.ErrAuditChainBroken.WithMessagef("line %d: %v", lineNo, err)
		}
		if err := fn(lineNo, rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan audit log: %w", err)
	}
	return nil
}

func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var lastHash model.HashValue
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		rec, err := decodeRecord(scanner.Bytes())
		if err != nil {
			continue // skip malformed lines
		}
		lastHash = rec.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan audit log: %w", err)
	}
	return lastHash, nil
}

// decodeRecord keeps numbers in details as written so that rehashing a
// record read back from disk reproduces the original hash.
func decodeRecord(line []byte) (model.AuditRecord, error) {
	var rec model.AuditRecord
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	err := dec.Decode(&rec)
	return rec, err
}

func computeRecordHash(record *model.AuditRecord) (model.HashValue, error) {
	hashRecord := *record
	hashRecord.RecordHash = ""

	data, err := jsonutil.CanonicalMarshal(&hashRecord)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}
