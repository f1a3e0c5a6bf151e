// Package discovery walks rule directories to find the rule files a patch
// set applies when it does not list them explicitly.
package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// Options configures a rule scan.
type Options struct {
	// Dir is the rules directory to walk.
	Dir string
	// Include holds doublestar patterns matched against slash-separated
	// paths relative to Dir. "*.yml" only matches top-level files;
	// "**/*.yml" matches at any depth.
	Include []string
	// Exclude holds patterns for files or directories to skip.
	Exclude []string
}

// ExtensionPatterns returns top-level include patterns for the given file
// extensions (".yml" becomes "*.yml").
func ExtensionPatterns(exts ...string) []string {
	patterns := make([]string, 0, len(exts))
	for _, ext := range exts {
		patterns = append(patterns, "*"+ext)
	}
	return patterns
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Rules walks opts.Dir and returns the absolute paths of matching files in
// lexical order. A missing directory yields an error wrapping
// fs.ErrNotExist.
func Rules(ctx context.Context, opts Options) ([]string, error) {
	absDir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules path %s is not a directory", absDir)
	}

	var rules []string
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(absDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || MatchesExclude(rel, opts.Exclude) {
				return fs.SkipDir
			}
			return nil
		}
		if MatchesExclude(rel, opts.Exclude) {
			return nil
		}
		if matchesAny(rel, opts.Include) {
			rules = append(rules, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(rules)
	return rules, nil
}

// MatchesExclude checks whether a path matches any of the given exclude
// glob patterns.
func MatchesExclude(path string, patterns []string) bool {
	return matchesAny(path, patterns)
}

func matchesAny(path string, patterns []string) bool {
	slashPath := filepath.ToSlash(path)
	for _, pattern := range patterns {
		match, err := doublestar.Match(filepath.ToSlash(pattern), slashPath)
		if err != nil {
			continue
		}
		if match {
			return true
		}
	}
	return false
}
