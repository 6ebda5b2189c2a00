// Package lock provides per-task leases so that two processes never
// execute and record the same task at once.
package lock

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
	"sync"
	"time"

	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/fsutil"
	"github.com/jvs-project/taskstate/pkg/logging"
	"github.com/jvs-project/taskstate/pkg/model"
	"github.com/jvs-project/taskstate/pkg/uuidutil"
)

// Manager handles task lease operations under a state directory.
type Manager struct {
	stateDir string
	policy   model.LockPolicy
	mu       sync.Mutex
}

// NewManager creates a new lock manager storing leases in stateDir/locks.
func NewManager(stateDir string, policy model.LockPolicy) *Manager {
	return &Manager{
		stateDir: stateDir,
		policy:   policy,
	}
}

// Acquire takes the lease for a task. An expired lease left behind by a
// crashed holder is taken over; a live one is E_LOCK_CONFLICT.
func (m *Manager) Acquire(id model.TaskID, purpose string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(id)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock: %w", err)
		}
		existing, readErr := m.readLock(lockPath)
		if readErr != nil {
			return nil, fmt.Errorf("read existing lock: %w", readErr)
		}
		if !existing.IsExpired(time.Now()) {
			return nil, errclass.ErrLockConflict.WithMessagef("task %s is locked by pid %d until %s",
				id, existing.PID, existing.ExpiresAt.Format(time.RFC3339))
		}
		return m.steal(id, purpose, existing)
	}
	defer file.Close()

	rec := m.newRecord(id, purpose)
	if err := m.writeLock(file, rec); err != nil {
		os.Remove(lockPath)
		return nil, err
	}
	return rec, nil
}

// steal replaces an expired lease. The lease file is re-read after the write
// so that of two concurrent stealers only the one whose nonce landed wins.
func (m *Manager) steal(id model.TaskID, purpose string, expired *model.LockRecord) (*model.LockRecord, error) {
	rec := m.newRecord(id, purpose)
	lockPath := m.lockPath(id)
	if err := m.updateLock(lockPath, rec); err != nil {
		return nil, fmt.Errorf("steal lock: %w", err)
	}
	current, err := m.readLock(lockPath)
	if err != nil {
		return nil, fmt.Errorf("read stolen lock: %w", err)
	}
	if current.HolderNonce != rec.HolderNonce {
		return nil, errclass.ErrLockConflict.WithMessagef("task %s was taken over concurrently", id)
	}
	logging.Warn("took over expired task lease", map[string]any{
		"task":        string(id),
		"expired_pid": expired.PID,
		"expired_at":  expired.ExpiresAt.Format(time.RFC3339),
	})
	return rec, nil
}

// Renew extends the lease on a held lock.
func (m *Manager) Renew(id model.TaskID, holderNonce string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(id)
	rec, err := m.readLock(lockPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errclass.ErrLockNotHeld.WithMessage("no lock held")
		}
		return nil, fmt.Errorf("read lock: %w", err)
	}
	if rec.HolderNonce != holderNonce {
		return nil, errclass.ErrLockNotHeld.WithMessage("nonce mismatch")
	}
	if rec.IsExpired(time.Now()) {
		return nil, errclass.ErrLockNotHeld.WithMessage("lease has expired")
	}

	rec.ExpiresAt = time.Now().UTC().Add(m.policy.LeaseTTL)
	if err := m.updateLock(lockPath, rec); err != nil {
		return nil, fmt.Errorf("update lock: %w", err)
	}
	return rec, nil
}

// Check returns E_LOCK_NOT_HELD unless holderNonce still holds a live lease.
func (m *Manager) Check(id model.TaskID, holderNonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readLock(m.lockPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errclass.ErrLockNotHeld.WithMessagef("task %s: no lock held", id)
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if rec.HolderNonce != holderNonce {
		return errclass.ErrLockNotHeld.WithMessagef("task %s: lease was taken over by pid %d", id, rec.PID)
	}
	if rec.IsExpired(time.Now()) {
		return errclass.ErrLockNotHeld.WithMessagef("task %s: lease has expired", id)
	}
	return nil
}

// Release frees the lock. Releasing a lock that is already gone is not an
// error; releasing someone else's is.
func (m *Manager) Release(id model.TaskID, holderNonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath(id)
	rec, err := m.readLock(lockPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if rec.HolderNonce != holderNonce {
		return errclass.ErrLockNotHeld.WithMessage("cannot release: nonce mismatch")
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}

// Status returns the current lease state of a task.
func (m *Manager) Status(id model.TaskID) (model.LockState, *model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readLock(m.lockPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.LockStateFree, nil, nil
		}
		return model.LockStateFree, nil, fmt.Errorf("read lock: %w", err)
	}
	if rec.IsExpired(time.Now()) {
		return model.LockStateExpired, rec, nil
	}
	return model.LockStateHeld, rec, nil
}

// Leases returns every lease file that can be read, sorted by task id.
// Unreadable lease files are returned as paths in broken.
func (m *Manager) Leases() (leases []*model.LockRecord, broken []string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Join(m.stateDir, "locks")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("list locks: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lock" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		rec, err := m.readLock(path)
		if err != nil {
			broken = append(broken, path)
			continue
		}
		leases = append(leases, rec)
	}
	sort.Slice(leases, func(i, j int) bool { return leases[i].TaskID < leases[j].TaskID })
	return leases, broken, nil
}

func (m *Manager) newRecord(id model.TaskID, purpose string) *model.LockRecord {
	now := time.Now().UTC()
	return &model.LockRecord{
		TaskID:      id,
		HolderNonce: uuidutil.NewV4(),
		PID:         os.Getpid(),
		AcquiredAt:  now,
		ExpiresAt:   now.Add(m.policy.LeaseTTL),
		Purpose:     purpose,
	}
}

func (m *Manager) lockPath(id model.TaskID) string {
	sum := sha256.Sum256([]byte(id))
	return filepath.Join(m.stateDir, "locks", hex.EncodeToString(sum[:])[:32]+".lock")
}

func (m *Manager) readLock(path string) (*model.LockRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec model.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &rec, nil
}

func (m *Manager) writeLock(file *os.File, rec *model.LockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write lock: %w", err)
	}
	return file.Sync()
}

func (m *Manager) updateLock(path string, rec *model.LockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	return fsutil.AtomicWrite(path, data, 0644)
}
