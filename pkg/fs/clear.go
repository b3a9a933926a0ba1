package fs

import (
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/PlanktoScope/automirror/pkg/structures"
)

// GitDirName is the name of the git metadata directory, which is never removed by [ClearDir].
const GitDirName = ".git"

// ValidatePatterns checks that every pattern is a valid doublestar glob pattern.
func ValidatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Errorf("invalid glob pattern %q", pattern)
		}
	}
	return nil
}

// ClearDir removes every file and directory in dir, except for the top-level git metadata
// directory and any path (relative to dir, slash-separated) matched by one of the preserve glob
// patterns. Directories containing preserved paths are kept, but their other contents are removed.
func ClearDir(dir string, preserve []string) error {
	kept, ancestors, err := matchPreserved(dir, preserve)
	if err != nil {
		return err
	}
	kept.Add(GitDirName)
	return clearSubdir(dir, ".", kept, ancestors)
}

func matchPreserved(
	dir string, patterns []string,
) (kept, ancestors structures.Set[string], err error) {
	kept = make(structures.Set[string])
	ancestors = make(structures.Set[string])
	fsys := os.DirFS(dir)
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, nil, errors.Wrapf(err, "couldn't match preserve pattern %q in %s", pattern, dir)
		}
		for _, match := range matches {
			if match == "." {
				return nil, nil, errors.Errorf("preserve pattern %q matches the entire tree", pattern)
			}
			kept.Add(match)
			for parent := path.Dir(match); parent != "."; parent = path.Dir(parent) {
				ancestors.Add(parent)
			}
		}
	}
	return kept, ancestors, nil
}

func clearSubdir(root, subdir string, kept, ancestors structures.Set[string]) error {
	dirPath := filepath.Join(root, filepath.FromSlash(subdir))
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return errors.Wrapf(err, "couldn't list directory %s", dirPath)
	}
	for _, entry := range entries {
		entryPath := path.Join(subdir, entry.Name())
		if kept.Has(entryPath) {
			continue
		}
		if ancestors.Has(entryPath) && entry.IsDir() {
			if err = clearSubdir(root, entryPath, kept, ancestors); err != nil {
				return err
			}
			continue
		}
		if err = os.RemoveAll(filepath.Join(root, filepath.FromSlash(entryPath))); err != nil {
			return errors.Wrapf(err, "couldn't remove %s", entryPath)
		}
	}
	return nil
}
