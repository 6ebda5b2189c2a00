//go:build conformance

package conformance

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

var taskstateBinary string

func init() {
	// Walk up to find bin/taskstate
	cwd, _ := os.Getwd()
	for {
		binPath := filepath.Join(cwd, "bin", "taskstate")
		if _, err := os.Stat(binPath); err == nil {
			taskstateBinary = binPath
			return
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	// Fallback to PATH
	taskstateBinary = "taskstate"
}

const pipelineTasks = `
tasks:
  - id: bundle
    run: "mkdir -p out && cat src/*.txt > out/all.txt"
    inputs:
      - name: sources
        roots: [src]
    outputs:
      - name: bundle
        roots: [out]
  - id: report
    run: "mkdir -p reports && wc -l out/all.txt > reports/lines.txt"
    inputs:
      - name: bundle
        roots: [out]
    outputs:
      - name: reports
        roots: [reports]
`

// initProject creates a project with a two-task pipeline and one source file.
func initProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	createFiles(t, dir, map[string]string{
		"tasks.yaml": pipelineTasks,
		"src/a.txt":  "alpha\n",
	})
	return dir
}

// runTaskstate executes the binary with args in the given project directory.
func runTaskstate(t *testing.T, dir string, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	cmd := exec.Command(taskstateBinary, append([]string{"--no-color"}, args...)...)
	cmd.Dir = dir
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}
	return
}

// mustRun runs the binary and fails the test on a non-zero exit.
func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	stdout, stderr, code := runTaskstate(t, dir, args...)
	if code != 0 {
		t.Fatalf("taskstate %v failed (exit %d): %s", args, code, stderr)
	}
	return stdout
}

type runResult struct {
	TaskID  string `json:"task_id"`
	Outcome string `json:"outcome"`
	Reasons []struct {
		Message string `json:"message"`
	} `json:"reasons"`
	Error string `json:"error"`
}

// runJSON runs tasks with --json and decodes the results.
func runJSON(t *testing.T, dir string, args ...string) []runResult {
	t.Helper()
	stdout, stderr, _ := runTaskstate(t, dir, append([]string{"--json", "run"}, args...)...)
	var results []runResult
	if err := json.Unmarshal([]byte(stdout), &results); err != nil {
		t.Fatalf("decode run output: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	return results
}

// outcomes maps task id to outcome.
func outcomes(results []runResult) map[string]string {
	m := make(map[string]string, len(results))
	for _, r := range results {
		m[r.TaskID] = r.Outcome
	}
	return m
}

// createFiles creates files relative to dir.
func createFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for filename, content := range files {
		path := filepath.Join(dir, filename)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", path, err)
		}
	}
}

// fileExists checks if a file exists.
func fileExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	t.Fatalf("failed to stat file %s: %v", path, err)
	return false
}
