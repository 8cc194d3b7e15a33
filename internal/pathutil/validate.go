// Package pathutil confines archive reads and writes requested by MCP
// clients to a set of allowed directories.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/labkit/internal/fault"
)

// ExportsDir is the directory under the labkit root that is always allowed.
const ExportsDir = "exports"

// RedactPath shortens a path to .../<parent>/<basename> for error messages,
// e.g. "/home/ana/.labkit/exports/adder.sav" becomes ".../exports/adder.sav".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ArchiveDirs returns <root>/exports followed by extra. Empty entries are
// skipped.
func ArchiveDirs(root string, extra ...string) []string {
	dirs := []string{filepath.Join(root, ExportsDir)}
	for _, d := range extra {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Resolve returns path relative to the first allowed directory when it is
// not absolute, so clients can name "adder.sav" instead of a full path.
func Resolve(path string, allowedDirs []string) string {
	if path == "" || filepath.IsAbs(path) || len(allowedDirs) == 0 {
		return filepath.Clean(path)
	}
	return filepath.Join(allowedDirs[0], path)
}

// ValidatePath checks that path lies inside one of allowedDirs after
// cleaning and resolving symlinks. Violations are InvalidArgument faults.
func ValidatePath(path string, allowedDirs []string) error {
	switch {
	case path == "":
		return fault.New(fault.KindInvalidArgument, "archive path is empty")
	case len(allowedDirs) == 0:
		return fault.New(fault.KindInvalidArgument, "no allowed archive directories configured")
	case strings.ContainsRune(path, '\x00'):
		return fault.New(fault.KindInvalidArgument, "archive path contains null byte")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fault.Wrap(fault.KindInvalidArgument, err, "cannot resolve archive path")
	}

	// The file may not exist yet, so only its directory is resolved.
	resolvedDir, err := resolveExistingParent(filepath.Dir(absPath))
	if err != nil {
		return fault.Wrap(fault.KindInvalidArgument, err, "cannot resolve archive directory")
	}
	resolved := filepath.Join(resolvedDir, filepath.Base(absPath))

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		allowedResolved, err := resolveExistingParent(allowedAbs)
		if err != nil {
			continue
		}
		if isSubpath(resolved, allowedResolved) {
			return nil
		}
	}

	return fault.New(fault.KindInvalidArgument, "%q is outside allowed directories", RedactPath(absPath))
}

// resolveExistingParent resolves symlinks on the deepest existing ancestor
// of dir and re-appends the missing tail.
func resolveExistingParent(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fault.New(fault.KindInvalidArgument, "cannot resolve path: %s", RedactPath(dir))
	}
	resolvedParent, err := resolveExistingParent(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// isSubpath reports whether path is base or lies below it.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}
