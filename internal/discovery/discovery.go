package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"kettle/internal/artifact"
)

// Error reports a source root that exists but cannot be scanned. It is fatal
// to a build run.
type Error struct {
	Root string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("discover sources in %s: %v", e.Root, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Find returns the absolute paths of files under root whose names end with
// ext and do not start with any of excludePrefixes. A missing root yields an
// empty result. When followLinks is set, symlinked directories are traversed
// once each; symlinked files are always considered.
func Find(root, ext string, excludePrefixes []string, followLinks bool) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &Error{Root: root, Err: err}
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &Error{Root: absRoot, Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Root: absRoot, Err: errors.New("not a directory")}
	}

	w := &walker{
		ext:         ext,
		exclude:     excludePrefixes,
		followLinks: followLinks,
		visited:     make(map[string]struct{}),
	}
	if err := w.walk(absRoot); err != nil {
		return nil, &Error{Root: absRoot, Err: err}
	}
	return w.found, nil
}

type walker struct {
	ext         string
	exclude     []string
	followLinks bool
	visited     map[string]struct{}
	found       []string
}

func (w *walker) walk(dir string) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	if _, seen := w.visited[resolved]; seen {
		return nil
	}
	w.visited[resolved] = struct{}{}

	// os.ReadDir returns entries sorted by name.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		isDir := entry.IsDir()
		if entry.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil {
				// Dangling link.
				continue
			}
			if target.IsDir() {
				if !w.followLinks {
					continue
				}
				isDir = true
			} else if !target.Mode().IsRegular() {
				continue
			}
		} else if !isDir && !entry.Type().IsRegular() {
			continue
		}

		if isDir {
			if err := w.walk(path); err != nil {
				return err
			}
			continue
		}
		if w.eligible(entry.Name()) {
			w.found = append(w.found, path)
		}
	}
	return nil
}

func (w *walker) eligible(name string) bool {
	if !strings.HasSuffix(name, w.ext) || name == w.ext {
		return false
	}
	for _, prefix := range w.exclude {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return false
		}
	}
	return true
}

// FindCompiledOutputs returns files under root ending in ext whose first
// line is the artifact header. Symlinks are not followed and files that
// cannot be read are never reported.
func FindCompiledOutputs(root, ext string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &Error{Root: root, Err: err}
	}
	if _, err := os.Stat(absRoot); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &Error{Root: absRoot, Err: err}
	}

	var found []string
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		managed, err := artifact.IsManaged(path)
		if err != nil || !managed {
			return nil
		}
		found = append(found, path)
		return nil
	})
	if walkErr != nil {
		return nil, &Error{Root: absRoot, Err: walkErr}
	}
	return found, nil
}

// MatchFilter reports whether path matches any of patterns. Patterns are
// doublestar globs tested against the base name and against the path
// relative to root. A pattern without glob syntax also matches the base name
// with its extension removed, so "app" selects "app.coffee". An empty pattern
// list matches everything.
func MatchFilter(root, path string, patterns []string) (bool, error) {
	if len(patterns) == 0 {
		return true, nil
	}
	base := filepath.Base(path)
	rel := base
	if r, err := filepath.Rel(root, path); err == nil {
		rel = filepath.ToSlash(r)
	}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !hasGlobMeta(pattern) {
			trimmed := filepath.ToSlash(pattern)
			if trimmed == base || trimmed == rel || trimmed == strings.TrimSuffix(base, filepath.Ext(base)) {
				return true, nil
			}
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return false, fmt.Errorf("invalid filter pattern %q", pattern)
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true, nil
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true, nil
		}
	}
	return false, nil
}

func hasGlobMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[{\`)
}
