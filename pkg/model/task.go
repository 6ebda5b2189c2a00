package model

import "time"

// TaskID identifies a task across builds, e.g. ":app:compile".
type TaskID string

// String returns the task ID as string.
func (id TaskID) String() string {
	return string(id)
}

// FileProperty is a named role a task declares, together with the
// filesystem roots to snapshot for it.
type FileProperty struct {
	Name  string   `json:"name" yaml:"name" toml:"name"`
	Roots []string `json:"roots" yaml:"roots" toml:"roots"`
}

// RecordFormatVersion is the current on-disk format of TaskRecord.
const RecordFormatVersion = 1

// TaskRecord is the persisted state of one task execution.
//
// InputFiles and OutputFiles map property name to snapshot. A record that has
// been saved is never mutated; the next successful execution supersedes it.
type TaskRecord struct {
	FormatVersion int                 `json:"format_version"`
	TaskID        TaskID              `json:"task_id"`
	ExecutionID   string              `json:"execution_id"`
	Signature     string              `json:"signature,omitempty"`
	CompletedAt   time.Time           `json:"completed_at"`
	InputFiles    map[string]Snapshot `json:"input_files"`
	OutputFiles   map[string]Snapshot `json:"output_files"`
	Checksum      HashValue           `json:"checksum,omitempty"`
}

// NewTaskRecord creates an empty current record for a task.
func NewTaskRecord(id TaskID, executionID string) *TaskRecord {
	return &TaskRecord{
		FormatVersion: RecordFormatVersion,
		TaskID:        id,
		ExecutionID:   executionID,
		InputFiles:    make(map[string]Snapshot),
		OutputFiles:   make(map[string]Snapshot),
	}
}

// InputSnapshot returns the input snapshot for a property, if recorded.
func (r *TaskRecord) InputSnapshot(property string) (Snapshot, bool) {
	if r == nil || r.InputFiles == nil {
		return Snapshot{}, false
	}
	s, ok := r.InputFiles[property]
	return s, ok
}

// OutputSnapshot returns the output snapshot for a property, if recorded.
func (r *TaskRecord) OutputSnapshot(property string) (Snapshot, bool) {
	if r == nil || r.OutputFiles == nil {
		return Snapshot{}, false
	}
	s, ok := r.OutputFiles[property]
	return s, ok
}

// TotalOutputFiles counts entries across all output properties.
func (r *TaskRecord) TotalOutputFiles() int {
	n := 0
	for _, s := range r.OutputFiles {
		n += s.Len()
	}
	return n
}
