// Package color provides terminal color output for taskstate.
// It respects the NO_COLOR environment variable (https://no-color.org/).
package color

import (
	"fmt"
	"os"
	"sync"

	"github.com/jvs-project/taskstate/pkg/model"
)

var state struct {
	mu       sync.RWMutex
	once     sync.Once
	enabled  bool
	disabled bool
}

// Init initializes the color system based on environment and flags.
func Init(noColorFlag bool) {
	state.once.Do(func() {
		state.mu.Lock()
		defer state.mu.Unlock()
		if _, exists := os.LookupEnv("NO_COLOR"); exists {
			state.disabled = true
		}
		if os.Getenv("TERM") == "dumb" {
			state.disabled = true
		}
		if noColorFlag {
			state.disabled = true
		}
		state.enabled = !state.disabled
	})
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	Init(false)
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.enabled
}

// Disable turns off color output.
func Disable() {
	Init(false)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.disabled = true
	state.enabled = false
}

// Enable turns on color output.
func Enable() {
	Init(false)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.disabled = false
	state.enabled = true
}

// ANSI color codes
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	DimCode = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Cyan    = "\033[36m"
)

func wrap(code, s string) string {
	if !Enabled() {
		return s
	}
	return code + s + Reset
}

// Success formats a success message in green.
func Success(s string) string { return wrap(Green, s) }

// Error formats an error message in red.
func Error(s string) string { return wrap(Red, s) }

// Errorf formats an error message with printf-style arguments.
func Errorf(format string, args ...any) string { return Error(fmt.Sprintf(format, args...)) }

// Warning formats a warning message in yellow.
func Warning(s string) string { return wrap(Yellow, s) }

// TaskID formats a task identity in cyan.
func TaskID(s string) string { return wrap(Cyan, s) }

// Header formats a header in bold.
func Header(s string) string { return wrap(Bold, s) }

// Dim formats secondary information.
func Dim(s string) string { return wrap(DimCode, s) }

// Outcome renders an execution outcome as a fixed-width status label.
func Outcome(o model.Outcome) string {
	switch o {
	case model.OutcomeUpToDate:
		return Dim("UP-TO-DATE")
	case model.OutcomeExecuted:
		return Success("EXECUTED")
	case model.OutcomeFailed:
		return Error("FAILED")
	default:
		return string(o)
	}
}

// Change renders a change marker: + added, - removed, ~ modified.
func Change(changeType string) string {
	switch changeType {
	case "added":
		return Success("+")
	case "removed":
		return Error("-")
	case "modified":
		return Warning("~")
	default:
		return "?"
	}
}
