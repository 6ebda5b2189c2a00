package model

import "time"

// LockRecord is stored at .taskstate/locks/<task-key>.json
type LockRecord struct {
	TaskID      TaskID    `json:"task_id"`
	HolderNonce string    `json:"holder_nonce"`
	PID         int       `json:"pid"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Purpose     string    `json:"purpose,omitempty"`
}

// IsExpired returns true if the lease has expired.
func (l *LockRecord) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// LockPolicy configures lease timing.
type LockPolicy struct {
	LeaseTTL time.Duration `json:"lease_ttl"`
}
