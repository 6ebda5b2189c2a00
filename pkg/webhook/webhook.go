// Package webhook delivers task outcome notifications to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jvs-project/taskstate/pkg/logging"
)

// EventType names a notification.
type EventType string

const (
	EventTaskExecuted     EventType = "task.executed"
	EventTaskUpToDate     EventType = "task.up_to_date"
	EventTaskFailed       EventType = "task.failed"
	EventRecordForgotten  EventType = "record.forgotten"
	EventRecordsCollected EventType = "records.collected"
	EventVerifyFailed     EventType = "verify.failed"
)

// Event is the JSON payload posted to hooks.
type Event struct {
	Event       EventType      `json:"event"`
	Timestamp   string         `json:"timestamp"`
	ProjectRoot string         `json:"project_root,omitempty"`
	TaskID      string         `json:"task_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Reasons     []string       `json:"reasons,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HookConfig is one endpoint. An empty Events list or "*" matches everything.
type HookConfig struct {
	URL    string
	Secret string
	Events []EventType
}

// Config configures a Client. ProjectRoot is stamped on events that do not
// carry one.
type Config struct {
	ProjectRoot    string
	Hooks          []HookConfig
	MaxRetries     int
	RetryDelay     time.Duration
	Timeout        time.Duration
	AsyncQueueSize int
}

// DefaultConfig returns the delivery defaults with no hooks.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
		Timeout:        10 * time.Second,
		AsyncQueueSize: 100,
	}
}

// Client sends events to every matching hook.
type Client struct {
	config *Config
	http   *http.Client
	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	closed bool
	mu     sync.RWMutex
	log    *logging.Logger
}

type job struct {
	event Event
	hook  HookConfig
}

// NewClient creates a client. The background sender starts with the first
// asynchronous event.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.AsyncQueueSize <= 0 {
		cfg.AsyncQueueSize = DefaultConfig().AsyncQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		queue:  make(chan *job, cfg.AsyncQueueSize),
		ctx:    ctx,
		cancel: cancel,
		log:    logging.WithFields(map[string]any{"component": "webhook"}),
	}
}

// Enabled reports whether any hook is configured.
func (c *Client) Enabled() bool {
	return c != nil && len(c.config.Hooks) > 0
}

func (c *Client) start() {
	c.once.Do(func() {
		c.wg.Add(1)
		go c.worker()
	})
}

func (c *Client) worker() {
	defer c.wg.Done()
	for j := range c.queue {
		c.send(j)
	}
}

// Send delivers event to all matching hooks, queued when async is true.
// A full queue drops the event with a warning.
func (c *Client) Send(event Event, async bool) error {
	if !c.Enabled() {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}

	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if matchesEvent(hook, event.Event) {
			hooks = append(hooks, hook)
		}
	}
	if len(hooks) == 0 {
		return nil
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if event.ProjectRoot == "" {
		event.ProjectRoot = c.config.ProjectRoot
	}

	if async {
		c.start()
		for _, hook := range hooks {
			select {
			case c.queue <- &job{event: event, hook: hook}:
			default:
				c.log.Warn("webhook queue full, dropping event", map[string]any{"event": string(event.Event), "url": hook.URL})
			}
		}
		return nil
	}

	var lastErr error
	for _, hook := range hooks {
		if err := c.sendSync(&job{event: event, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c *Client) send(j *job) {
	if err := c.sendSync(j); err != nil {
		c.log.ErrorErr("deliver webhook", err, map[string]any{"event": string(j.event.Event), "url": j.hook.URL})
	}
}

// sendSync posts one event with retries. Any 2xx response is success.
func (c *Client) sendSync(j *job) error {
	payload, err := json.Marshal(j.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				if lastErr != nil {
					return lastErr
				}
				return c.ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		req, err := c.createRequest(j, payload)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return lastErr
}

func (c *Client) createRequest(j *job, payload []byte) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, j.hook.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "taskstate-webhook/1.0")
	req.Header.Set("X-Taskstate-Event", string(j.event.Event))
	if j.hook.Secret != "" {
		req.Header.Set("X-Taskstate-Signature", Sign(payload, j.hook.Secret))
	}
	return req, nil
}

// Sign returns the HMAC-SHA256 signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matchesEvent(hook HookConfig, event EventType) bool {
	if len(hook.Events) == 0 {
		return true
	}
	for _, e := range hook.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Close stops accepting events and waits for queued ones to be delivered,
// retries included.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	c.wg.Wait()
	c.cancel()
	return nil
}
