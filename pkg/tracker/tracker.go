// Package tracker identifies files produced by an external invocation in a
// shared directory. Inode identity is unreliable for the artifacts involved
// (a recreated file may get the same inode), so the tracker compares
// modification times taken before and after the invocation.
package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Snapshot maps a matching path to its modification time.
type Snapshot map[string]time.Time

// Take records the modification time of every file in dir matching one of
// patterns.
func Take(dir string, patterns []string) (Snapshot, error) {
	paths, err := match(dir, patterns)
	if err != nil {
		return nil, err
	}

	snap := make(Snapshot, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		snap[p] = info.ModTime()
	}
	return snap, nil
}

// Claim returns, sorted, every file in dir matching patterns that is
// absent from snap or whose modification time strictly advanced since snap
// was taken. Nothing is moved or deleted.
func Claim(dir string, patterns []string, snap Snapshot) ([]string, error) {
	paths, err := match(dir, patterns)
	if err != nil {
		return nil, err
	}

	var claimed []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		before, existed := snap[p]
		if !existed || info.ModTime().After(before) {
			claimed = append(claimed, p)
		}
	}
	return claimed, nil
}

// Matches reports whether the base name of path matches any of patterns.
func Matches(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// Union merges path lists, dropping duplicates, and returns them sorted.
func Union(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, p := range list {
			p = filepath.Clean(p)
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

func match(dir string, patterns []string) ([]string, error) {
	var all []string
	for _, pattern := range patterns {
		found, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		all = append(all, found...)
	}
	return Union(all), nil
}
