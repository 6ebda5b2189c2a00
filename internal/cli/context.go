package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jvs-project/taskstate/internal/audit"
	"github.com/jvs-project/taskstate/internal/capture"
	"github.com/jvs-project/taskstate/internal/execution"
	"github.com/jvs-project/taskstate/internal/lock"
	"github.com/jvs-project/taskstate/internal/store"
	"github.com/jvs-project/taskstate/internal/taskfile"
	"github.com/jvs-project/taskstate/pkg/color"
	"github.com/jvs-project/taskstate/pkg/config"
	"github.com/jvs-project/taskstate/pkg/logging"
	"github.com/jvs-project/taskstate/pkg/metrics"
	"github.com/jvs-project/taskstate/pkg/model"
	"github.com/jvs-project/taskstate/pkg/webhook"
)

// project is everything a command needs to work on one project directory.
type project struct {
	root        string
	cfg         *config.Config
	store       store.Store
	snapshotter *capture.Snapshotter
	locks       *lock.Manager
	audit       *audit.FileAppender
	metrics     *metrics.Registry
	hooks       *webhook.Client
}

func projectRoot() (string, error) {
	dir := projectDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("cannot get current directory: %w", err)
		}
		dir = cwd
	}
	return filepath.Abs(dir)
}

// openProject loads the configuration and opens the record store.
func openProject() (*project, error) {
	root, err := projectRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if err := applyLogging(cfg); err != nil {
		return nil, err
	}

	ttl, err := cfg.LeaseTTL()
	if err != nil {
		return nil, err
	}
	retryDelay, err := cfg.RetryDelay()
	if err != nil {
		return nil, err
	}
	snapshotter, err := capture.NewSnapshotter(root, cfg.Capture.HashCacheSize)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(root, cfg)
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(root, config.StateDirName)
	return &project{
		root:        root,
		cfg:         cfg,
		store:       st,
		snapshotter: snapshotter,
		locks:       lock.NewManager(stateDir, model.LockPolicy{LeaseTTL: ttl}),
		audit:       audit.NewFileAppender(filepath.Join(stateDir, "audit", "audit.jsonl")),
		metrics:     metrics.Default(),
		hooks:       webhook.NewClient(webhookConfig(root, cfg, retryDelay)),
	}, nil
}

func webhookConfig(root string, cfg *config.Config, retryDelay time.Duration) *webhook.Config {
	wc := webhook.DefaultConfig()
	wc.ProjectRoot = root
	wc.MaxRetries = cfg.Webhooks.MaxRetries
	wc.RetryDelay = retryDelay
	for _, h := range cfg.Webhooks.Hooks {
		hook := webhook.HookConfig{URL: h.URL, Secret: h.Secret}
		for _, e := range h.Events {
			hook.Events = append(hook.Events, webhook.EventType(e))
		}
		wc.Hooks = append(wc.Hooks, hook)
	}
	return wc
}

// applyLogging configures the global logger. --log-level wins over the
// configured level.
func applyLogging(cfg *config.Config) error {
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return err
	}
	logging.Global().SetFormat(format)
	if logLevel != "" {
		return nil
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logging.Global().SetLevel(level)
	return nil
}

// Close waits for queued webhooks and closes the store.
func (p *project) Close() {
	p.hooks.Close()
	if err := p.store.Close(); err != nil {
		logging.ErrorErr("close store", err)
	}
}

func (p *project) executor(force bool) *execution.Executor {
	return execution.New(p.store, p.snapshotter,
		execution.WithLocks(p.locks),
		execution.WithAudit(p.audit),
		execution.WithMetrics(p.metrics),
		execution.WithWebhooks(p.hooks),
		execution.WithMaxReasons(p.cfg.Reporting.MaxReasons),
		execution.WithSnapshotReuse(p.cfg.Capture.SnapshotReuse),
		execution.WithForce(force),
	)
}

// loadTasks reads the task file, or the default one in the project root.
func (p *project) loadTasks(path string) (*taskfile.File, error) {
	if path == "" {
		found, err := taskfile.Discover(p.root)
		if err != nil {
			return nil, err
		}
		path = found
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(p.root, path)
	}
	return taskfile.Load(path)
}

func fmtErr(format string, args ...any) {
	prefix := "taskstate: "
	if color.Enabled() {
		prefix = color.Error("taskstate:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
