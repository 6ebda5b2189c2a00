// Package pathutil provides path and name validation utilities.
package pathutil

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/jvs-project/taskstate/pkg/errclass"
)

var (
	propertyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9._-]*$`)
	taskIDRegex   = regexp.MustCompile(`^[a-zA-Z0-9:._/-]+$`)
)

// ValidatePropertyName checks a declared property name.
func ValidatePropertyName(name string) error {
	if name == "" {
		return errclass.ErrNameInvalid.WithMessage("property name must not be empty")
	}
	if !propertyRegex.MatchString(name) {
		return errclass.ErrNameInvalid.WithMessagef("property name must match [a-zA-Z_][a-zA-Z0-9._-]*: %s", name)
	}
	return nil
}

// ValidateTaskID checks a task identity, e.g. ":app:compile".
func ValidateTaskID(id string) error {
	if id == "" {
		return errclass.ErrNameInvalid.WithMessage("task id must not be empty")
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("task id must not contain control characters: %q", id)
		}
	}

	if strings.Contains(id, "..") {
		return errclass.ErrNameInvalid.WithMessagef("task id must not contain '..': %s", id)
	}

	if !taskIDRegex.MatchString(id) {
		return errclass.ErrNameInvalid.WithMessagef("task id must match [a-zA-Z0-9:._/-]+: %s", id)
	}

	return nil
}

// NormalizePath turns a path under base into the normalized relative form
// used as a snapshot key: slash separated, cleaned, NFC normalized.
func NormalizePath(base, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return "", errclass.ErrPathEscape.WithMessagef("cannot relate %s to %s: %v", path, base, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errclass.ErrPathEscape.WithMessagef("path escapes project root: %s", path)
	}
	return norm.NFC.String(filepath.ToSlash(rel)), nil
}

// ValidatePathSafety verifies target path does not escape the project root.
func ValidatePathSafety(root, targetPath string) error {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return errclass.ErrPathEscape.WithMessagef("cannot resolve project root: %v", err)
	}

	// Try resolving target; if it doesn't exist, resolve closest ancestor
	resolvedTarget, err := filepath.EvalSymlinks(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			resolvedTarget = resolveClosestAncestor(targetPath)
		} else {
			return errclass.ErrPathEscape.WithMessagef("cannot resolve target: %v", err)
		}
	}

	if !strings.HasPrefix(resolvedTarget+"/", resolvedRoot+"/") &&
		resolvedTarget != resolvedRoot {
		return errclass.ErrPathEscape.WithMessagef("path escapes project root: %s", targetPath)
	}

	return nil
}

// resolveClosestAncestor walks up from path to find the closest existing
// ancestor, resolves it, then appends the remaining components.
func resolveClosestAncestor(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	if dir == path {
		return filepath.Clean(path)
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		if os.IsNotExist(err) {
			resolved = resolveClosestAncestor(dir)
		} else {
			return filepath.Clean(path)
		}
	}
	return filepath.Join(resolved, base)
}
