package pathutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/pathutil"
)

func TestValidatePropertyName_Valid(t *testing.T) {
	for _, name := range []string{"classes", "outputDir", "report_html", "_gen", "out.v2", "x-y"} {
		assert.NoError(t, pathutil.ValidatePropertyName(name), name)
	}
}

func TestValidatePropertyName_Invalid(t *testing.T) {
	for _, name := range []string{"", "1abc", "with space", "a/b", "tab\there"} {
		err := pathutil.ValidatePropertyName(name)
		require.ErrorIs(t, err, errclass.ErrNameInvalid, name)
	}
}

func TestValidateTaskID_Valid(t *testing.T) {
	for _, id := range []string{":app:compile", "build", "lib/test.unit", "gen-docs"} {
		assert.NoError(t, pathutil.ValidateTaskID(id), id)
	}
}

func TestValidateTaskID_Invalid(t *testing.T) {
	for _, id := range []string{"", "a..b", "bad\x00id", "spaced id"} {
		err := pathutil.ValidateTaskID(id)
		require.ErrorIs(t, err, errclass.ErrNameInvalid, id)
	}
}

func TestNormalizePath(t *testing.T) {
	base := t.TempDir()

	got, err := pathutil.NormalizePath(base, filepath.Join(base, "out", "sub", "..", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "out/a.txt", got)

	got, err = pathutil.NormalizePath(base, "build/classes")
	require.NoError(t, err)
	assert.Equal(t, "build/classes", got)

	got, err = pathutil.NormalizePath(base, base)
	require.NoError(t, err)
	assert.Equal(t, ".", got)
}

func TestNormalizePath_NFC(t *testing.T) {
	base := t.TempDir()
	decomposed := "cafe\u0301.txt"

	got, err := pathutil.NormalizePath(base, decomposed)
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9.txt", got)
}

func TestNormalizePath_Escape(t *testing.T) {
	base := t.TempDir()
	_, err := pathutil.NormalizePath(base, "../outside")
	require.ErrorIs(t, err, errclass.ErrPathEscape)
}

func TestValidatePathSafety_UnderRoot(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "build", "out")
	require.NoError(t, os.MkdirAll(target, 0755))
	assert.NoError(t, pathutil.ValidatePathSafety(root, target))
}

func TestValidatePathSafety_Escape(t *testing.T) {
	root := t.TempDir()
	err := pathutil.ValidatePathSafety(root, "/tmp/evil")
	require.ErrorIs(t, err, errclass.ErrPathEscape)
}

func TestValidatePathSafety_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "escape")
	require.NoError(t, os.Symlink("/tmp", link))
	err := pathutil.ValidatePathSafety(root, link)
	require.ErrorIs(t, err, errclass.ErrPathEscape)
}

func TestValidatePathSafety_NonExistentTarget(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "build", "not-yet")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "build"), 0755))
	assert.NoError(t, pathutil.ValidatePathSafety(root, target))
}
