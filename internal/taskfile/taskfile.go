// Package taskfile loads task declarations from YAML or TOML files and turns
// them into executable tasks.
package taskfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jvs-project/taskstate/internal/execution"
	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/model"
)

// DefaultNames are tried in order when no task file is given.
var DefaultNames = []string{"tasks.yaml", "tasks.yml", "tasks.toml"}

// File is a parsed task file.
type File struct {
	Path  string `yaml:"-" toml:"-"`
	Tasks []Spec `yaml:"tasks" toml:"tasks"`
}

// Spec declares one task. Exactly one of Command and Run is set: Command is
// executed directly, Run through "sh -c".
type Spec struct {
	ID      string               `yaml:"id" toml:"id"`
	Command []string             `yaml:"command,omitempty" toml:"command,omitempty"`
	Run     string               `yaml:"run,omitempty" toml:"run,omitempty"`
	Env     map[string]string    `yaml:"env,omitempty" toml:"env,omitempty"`
	Inputs  []model.FileProperty `yaml:"inputs,omitempty" toml:"inputs,omitempty"`
	Outputs []model.FileProperty `yaml:"outputs,omitempty" toml:"outputs,omitempty"`
}

// Discover returns the first default task file present in dir.
func Discover(dir string) (string, error) {
	for _, name := range DefaultNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errclass.ErrTaskNotFound.WithMessagef("no task file (%s) in %s", strings.Join(DefaultNames, ", "), dir)
}

// Load reads a task file, choosing the decoder by extension.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errclass.ErrTaskNotFound.WithMessagef("task file %s does not exist", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	f := &File{Path: path}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), f); err != nil {
			return nil, errclass.ErrConfigInvalid.WithMessagef("decode TOML %s: %v", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, errclass.ErrConfigInvalid.WithMessagef("decode YAML %s: %v", path, err)
		}
	default:
		return nil, errclass.ErrConfigInvalid.WithMessagef("unsupported task file extension %q", ext)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks every task declaration and rejects duplicate ids.
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.Tasks))
	for i := range f.Tasks {
		s := &f.Tasks[i]
		if seen[s.ID] {
			return errclass.ErrNameInvalid.WithMessagef("duplicate task id %s", s.ID)
		}
		seen[s.ID] = true

		if len(s.Command) == 0 && s.Run == "" {
			return errclass.ErrConfigInvalid.WithMessagef("task %s: one of command or run is required", s.ID)
		}
		if len(s.Command) > 0 && s.Run != "" {
			return errclass.ErrConfigInvalid.WithMessagef("task %s: command and run are mutually exclusive", s.ID)
		}
		task := execution.Task{ID: model.TaskID(s.ID), Inputs: s.Inputs, Outputs: s.Outputs}
		if err := task.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Select returns the named tasks in the order given, or all tasks in file
// order when ids is empty.
func (f *File) Select(ids []string) ([]Spec, error) {
	if len(ids) == 0 {
		return f.Tasks, nil
	}
	byID := make(map[string]Spec, len(f.Tasks))
	for _, s := range f.Tasks {
		byID[s.ID] = s
	}
	out := make([]Spec, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, errclass.ErrTaskNotFound.WithMessagef("task %s is not declared in %s", id, f.Path)
		}
		out = append(out, s)
	}
	return out, nil
}

// Argv returns the process to run.
func (s Spec) Argv() []string {
	if len(s.Command) > 0 {
		return s.Command
	}
	return []string{"sh", "-c", s.Run}
}

// Signature identifies the task implementation: its argv and environment.
// Every argument is quoted so that different argv never share a signature.
func (s Spec) Signature() string {
	var b strings.Builder
	for i, arg := range s.Argv() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Quote(arg))
	}
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(strconv.Quote(k) + "=" + strconv.Quote(s.Env[k]))
	}
	return b.String()
}

// Task builds an executable task running in dir with output forwarded to
// stdout and stderr.
func (s Spec) Task(dir string, stdout, stderr io.Writer) *execution.Task {
	argv := s.Argv()
	env := s.Env
	return &execution.Task{
		ID:        model.TaskID(s.ID),
		Inputs:    s.Inputs,
		Outputs:   s.Outputs,
		Signature: s.Signature(),
		Action: func(ctx context.Context) error {
			cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
			cmd.Dir = dir
			cmd.Stdout = stdout
			cmd.Stderr = stderr
			cmd.Env = os.Environ()
			for k, v := range env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
			if err := cmd.Run(); err != nil {
				return fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
			}
			return nil
		},
	}
}
