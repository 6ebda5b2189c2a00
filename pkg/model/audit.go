package model

import "time"

// AuditEventType identifies the type of auditable event.
type AuditEventType string

const (
	EventTypeTaskUpToDate AuditEventType = "task_up_to_date"
	EventTypeTaskExecuted AuditEventType = "task_executed"
	EventTypeTaskFailed   AuditEventType = "task_failed"
	EventTypeRecordForget AuditEventType = "record_forget"
	EventTypeGCRun        AuditEventType = "gc_run"
)

// AuditRecord is a single line in the audit log (JSONL format).
type AuditRecord struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	TaskID      TaskID         `json:"task_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	PrevHash    HashValue      `json:"prev_hash"`
	RecordHash  HashValue      `json:"record_hash"`
}
