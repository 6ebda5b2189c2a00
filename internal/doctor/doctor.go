// Package doctor checks the health of a project's state directory.
package doctor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jvs-project/taskstate/internal/audit"
	"github.com/jvs-project/taskstate/internal/lock"
	"github.com/jvs-project/taskstate/internal/store"
	"github.com/jvs-project/taskstate/pkg/config"
	"github.com/jvs-project/taskstate/pkg/fsutil"
)

// Severity levels. Critical and error findings make the project unhealthy.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

const tmpPrefix = ".taskstate-tmp-"

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
	Repaired    bool   `json:"repaired,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

func (r *Result) add(f Finding) {
	if f.Severity == SeverityCritical || f.Severity == SeverityError {
		r.Healthy = false
	}
	r.Findings = append(r.Findings, f)
}

// Doctor performs state directory health checks.
type Doctor struct {
	root     string
	stateDir string
	store    store.Store
	locks    *lock.Manager
	audit    *audit.FileAppender
}

// NewDoctor creates a doctor for the project at root.
func NewDoctor(root string, st store.Store, locks *lock.Manager, appender *audit.FileAppender) *Doctor {
	return &Doctor{
		root:     root,
		stateDir: filepath.Join(root, config.StateDirName),
		store:    st,
		locks:    locks,
		audit:    appender,
	}
}

// Check runs all diagnostic checks. With repair, expired leases, unreadable
// lease files and orphan temp files are removed.
func (d *Doctor) Check(repair bool) (*Result, error) {
	result := &Result{Healthy: true}

	d.checkConfig(result)
	if err := d.checkRecords(result); err != nil {
		return nil, err
	}
	if err := d.checkLeases(result, repair); err != nil {
		return nil, err
	}
	d.checkAudit(result)
	d.checkOrphanTmp(result, repair)

	return result, nil
}

func (d *Doctor) checkConfig(result *Result) {
	if _, err := config.Load(d.root); err != nil {
		result.add(Finding{
			Category:    "config",
			Description: err.Error(),
			Severity:    SeverityCritical,
			Path:        config.Path(d.root),
		})
	}
}

func (d *Doctor) checkRecords(result *Result) error {
	problems, err := d.store.Verify()
	if err != nil {
		return fmt.Errorf("verify records: %w", err)
	}
	for _, p := range problems {
		result.add(Finding{
			Category:    "record",
			Description: p.Message,
			Severity:    SeverityError,
			Path:        p.Location,
		})
	}
	return nil
}

func (d *Doctor) checkLeases(result *Result, repair bool) error {
	leases, broken, err := d.locks.Leases()
	if err != nil {
		return err
	}
	now := time.Now()
	for _, rec := range leases {
		if !rec.IsExpired(now) {
			result.add(Finding{
				Category:    "lock",
				Description: fmt.Sprintf("task %s is being executed by pid %d", rec.TaskID, rec.PID),
				Severity:    SeverityInfo,
			})
			continue
		}
		f := Finding{
			Category:    "lock",
			Description: fmt.Sprintf("expired lease on task %s (since %s)", rec.TaskID, rec.ExpiresAt.Format(time.RFC3339)),
			Severity:    SeverityWarning,
		}
		if repair {
			f.Repaired = d.locks.Release(rec.TaskID, rec.HolderNonce) == nil
		}
		result.add(f)
	}
	for _, path := range broken {
		f := Finding{
			Category:    "lock",
			Description: "unreadable lease file",
			Severity:    SeverityWarning,
			Path:        path,
		}
		if repair {
			f.Repaired = fsutil.RemoveAndSync(path) == nil
		}
		result.add(f)
	}
	return nil
}

func (d *Doctor) checkAudit(result *Result) {
	if _, err := d.audit.Verify(); err != nil {
		result.add(Finding{
			Category:    "audit",
			Description: err.Error(),
			Severity:    SeverityCritical,
			Path:        d.audit.Path(),
		})
	}
}

func (d *Doctor) checkOrphanTmp(result *Result, repair bool) {
	filepath.WalkDir(d.stateDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), tmpPrefix) {
			return nil
		}
		f := Finding{
			Category:    "tmp",
			Description: fmt.Sprintf("orphan temp file: %s", entry.Name()),
			Severity:    SeverityInfo,
			Path:        path,
		}
		if repair {
			f.Repaired = os.Remove(path) == nil
		}
		result.add(f)
		return nil
	})
}
