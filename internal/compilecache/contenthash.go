// Package compilecache implements the Compile Cache (C4): a
// content-addressed store mapping source fingerprint to prepared
// executable artifact, with a single-flight build guarantee.
package compilecache

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// excludedNames are hidden directories, the cache's own state, and OS
// artifact files that never participate in a source tree's content hash.
var excludedNames = map[string]bool{
	".git":       true,
	".DS_Store":  true,
	"Thumbs.db":  true,
	".skillforge": true,
}

// ContentHash computes a stable digest over a source tree: every regular
// file's relative path and bytes, in sorted path order, excluding hidden
// directories, the compile cache's own state, and OS artifact files. A
// single file path is accepted directly (for prebuilt component blobs). A
// docker:<image>[:tag] locator (per spec.md §4.2) has no filesystem
// presence; its hash is over the locator string itself, so a tag bump
// invalidates the cache the same way an edited file would.
func ContentHash(sourcePath string) (string, error) {
	if strings.HasPrefix(sourcePath, "docker:") {
		h := sha256.New()
		fmt.Fprintf(h, "docker\x00%s", sourcePath)
		return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", fmt.Errorf("stat source %s: %w", sourcePath, err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(sourcePath)
		if err != nil {
			return "", fmt.Errorf("reading source %s: %w", sourcePath, err)
		}
		h := sha256.New()
		fmt.Fprintf(h, "%s\x00", filepath.Base(sourcePath))
		h.Write(data)
		return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
	}

	var paths []string
	err = filepath.WalkDir(sourcePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != sourcePath && (strings.HasPrefix(name, ".") || excludedNames[name]) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(sourcePath, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking source tree %s: %w", sourcePath, err)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, rel := range paths {
		data, err := os.ReadFile(filepath.Join(sourcePath, rel))
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", rel, err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00", rel, len(data))
		h.Write(data)
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}
