package model

// FileKind identifies what a fingerprinted path was when it was observed.
type FileKind string

const (
	KindMissing FileKind = "missing"
	KindFile    FileKind = "file"
	KindDir     FileKind = "dir"
)

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string

// StoreBackend names a task record store implementation.
type StoreBackend string

const (
	StoreBackendFile   StoreBackend = "file"
	StoreBackendSQLite StoreBackend = "sqlite"
)

// LockState represents the current state of a task lease.
type LockState string

const (
	LockStateHeld    LockState = "held"
	LockStateExpired LockState = "expired"
	LockStateFree    LockState = "free"
)

// Outcome is the result of evaluating one task.
type Outcome string

const (
	OutcomeUpToDate Outcome = "up_to_date"
	OutcomeExecuted Outcome = "executed"
	OutcomeFailed   Outcome = "failed"
)
