package taskfile_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvs-project/taskstate/internal/taskfile"
	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/model"
)

const yamlTasks = `
tasks:
  - id: ":app:generate"
    run: "mkdir -p gen && echo hello > gen/greeting.txt"
    outputs:
      - name: generated
        roots: [gen]
  - id: ":app:compile"
    command: ["go", "build", "-o", "bin/app", "./cmd/app"]
    env:
      CGO_ENABLED: "0"
    inputs:
      - name: sources
        roots: [cmd, internal]
    outputs:
      - name: binary
        roots: [bin/app]
`

const tomlTasks = `
[[tasks]]
id = ":app:generate"
run = "mkdir -p gen && echo hello > gen/greeting.txt"

  [[tasks.outputs]]
  name = "generated"
  roots = ["gen"]

[[tasks]]
id = ":app:compile"
command = ["go", "build", "-o", "bin/app", "./cmd/app"]

  [tasks.env]
  CGO_ENABLED = "0"

  [[tasks.inputs]]
  name = "sources"
  roots = ["cmd", "internal"]

  [[tasks.outputs]]
  name = "binary"
  roots = ["bin/app"]
`

func writeTaskFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAMLAndTOMLAgree(t *testing.T) {
	fromYAML, err := taskfile.Load(writeTaskFile(t, "tasks.yaml", yamlTasks))
	require.NoError(t, err)
	fromTOML, err := taskfile.Load(writeTaskFile(t, "tasks.toml", tomlTasks))
	require.NoError(t, err)

	assert.Equal(t, fromYAML.Tasks, fromTOML.Tasks)
	require.Len(t, fromYAML.Tasks, 2)

	compile := fromYAML.Tasks[1]
	assert.Equal(t, ":app:compile", compile.ID)
	assert.Equal(t, []model.FileProperty{{Name: "sources", Roots: []string{"cmd", "internal"}}}, compile.Inputs)
	assert.Equal(t, "0", compile.Env["CGO_ENABLED"])
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{"duplicate id", "tasks.yaml", "tasks:\n  - {id: a, run: x}\n  - {id: a, run: y}\n", errclass.ErrNameInvalid},
		{"no command", "tasks.yaml", "tasks:\n  - {id: a}\n", errclass.ErrConfigInvalid},
		{"both command and run", "tasks.yaml", "tasks:\n  - {id: a, run: x, command: [y]}\n", errclass.ErrConfigInvalid},
		{"bad property name", "tasks.yaml", "tasks:\n  - {id: a, run: x, inputs: [{name: '1bad', roots: [src]}]}\n", errclass.ErrNameInvalid},
		{"bad task id", "tasks.yaml", "tasks:\n  - {id: 'a b', run: x}\n", errclass.ErrNameInvalid},
		{"malformed yaml", "tasks.yaml", "tasks: [", errclass.ErrConfigInvalid},
		{"malformed toml", "tasks.toml", "[[tasks]\n", errclass.ErrConfigInvalid},
		{"unknown extension", "tasks.json", "{}", errclass.ErrConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := taskfile.Load(writeTaskFile(t, tt.file, tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := taskfile.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, errclass.ErrTaskNotFound)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	_, err := taskfile.Discover(dir)
	assert.ErrorIs(t, err, errclass.ErrTaskNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks.toml"), []byte(tomlTasks), 0644))
	path, err := taskfile.Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tasks.toml"), path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks.yaml"), []byte(yamlTasks), 0644))
	path, err = taskfile.Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tasks.yaml"), path)
}

func TestFile_Select(t *testing.T) {
	f, err := taskfile.Load(writeTaskFile(t, "tasks.yaml", yamlTasks))
	require.NoError(t, err)

	all, err := f.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	picked, err := f.Select([]string{":app:compile", ":app:generate"})
	require.NoError(t, err)
	assert.Equal(t, ":app:compile", picked[0].ID)
	assert.Equal(t, ":app:generate", picked[1].ID)

	_, err = f.Select([]string{":app:test"})
	assert.ErrorIs(t, err, errclass.ErrTaskNotFound)
}

func TestSpec_Signature(t *testing.T) {
	s := taskfile.Spec{ID: "a", Command: []string{"make", "all"}, Env: map[string]string{"B": "2", "A": "1"}}
	assert.Equal(t, `"make" "all" "A"="1" "B"="2"`, s.Signature())

	s = taskfile.Spec{ID: "a", Run: "echo hi"}
	assert.Equal(t, []string{"sh", "-c", "echo hi"}, s.Argv())
	assert.Equal(t, `"sh" "-c" "echo hi"`, s.Signature())
}

func TestSpec_SignatureDistinguishesArgumentBoundaries(t *testing.T) {
	cases := []struct {
		a, b taskfile.Spec
	}{
		{
			taskfile.Spec{Command: []string{"sh", "-c", "a b"}},
			taskfile.Spec{Command: []string{"sh", "-c a", "b"}},
		},
		{
			taskfile.Spec{Command: []string{"make", "A=1"}},
			taskfile.Spec{Command: []string{"make"}, Env: map[string]string{"A": "1"}},
		},
		{
			taskfile.Spec{Command: []string{"make"}, Env: map[string]string{"A=": "1"}},
			taskfile.Spec{Command: []string{"make"}, Env: map[string]string{"A": "=1"}},
		},
	}
	for _, tc := range cases {
		assert.NotEqual(t, tc.a.Signature(), tc.b.Signature())
	}
}

func TestSpec_TaskRunsCommand(t *testing.T) {
	dir := t.TempDir()
	spec := taskfile.Spec{
		ID:      "greet",
		Run:     "mkdir -p gen && printf \"$GREETING\" > gen/out.txt && echo done",
		Env:     map[string]string{"GREETING": "hello"},
		Outputs: []model.FileProperty{{Name: "generated", Roots: []string{"gen"}}},
	}

	var stdout, stderr bytes.Buffer
	task := spec.Task(dir, &stdout, &stderr)
	require.NoError(t, task.Validate())
	require.NoError(t, task.Action(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, "gen", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "done\n", stdout.String())

	failing := taskfile.Spec{ID: "fail", Run: "exit 3"}.Task(dir, &stdout, &stderr)
	assert.Error(t, failing.Action(context.Background()))
}
