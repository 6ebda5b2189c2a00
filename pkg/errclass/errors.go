package errclass

import "fmt"

// StateError is a stable, machine-readable error class.
type StateError struct {
	Code    string
	Message string
}

func (e *StateError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StateError) Is(target error) bool {
	t, ok := target.(*StateError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new StateError with the same Code but a specific message.
func (e *StateError) WithMessage(msg string) *StateError {
	return &StateError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new StateError with a formatted message.
func (e *StateError) WithMessagef(format string, args ...any) *StateError {
	return &StateError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Stable error classes.
var (
	ErrNameInvalid       = &StateError{Code: "E_NAME_INVALID"}
	ErrPathEscape        = &StateError{Code: "E_PATH_ESCAPE"}
	ErrCaptureFailed     = &StateError{Code: "E_CAPTURE_FAILED"}
	ErrCaptureOrder      = &StateError{Code: "E_CAPTURE_ORDER"}
	ErrRecordCorrupt     = &StateError{Code: "E_RECORD_CORRUPT"}
	ErrFormatUnsupported = &StateError{Code: "E_FORMAT_UNSUPPORTED"}
	ErrStoreIO           = &StateError{Code: "E_STORE_IO"}
	ErrLockConflict      = &StateError{Code: "E_LOCK_CONFLICT"}
	ErrLockNotHeld       = &StateError{Code: "E_LOCK_NOT_HELD"}
	ErrTaskFailed        = &StateError{Code: "E_TASK_FAILED"}
	ErrTaskNotFound      = &StateError{Code: "E_TASK_NOT_FOUND"}
	ErrAuditChainBroken  = &StateError{Code: "E_AUDIT_CHAIN_BROKEN"}
	ErrConfigInvalid     = &StateError{Code: "E_CONFIG_INVALID"}
)
