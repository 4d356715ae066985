package pm

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// defaultIgnore lists path components never shipped by any supported
// package manager, mirroring npm's built-in pack exclusions.
var defaultIgnore = []string{
	"node_modules", ".git", ".hg", ".svn", "CVS",
	".DS_Store", "npm-debug.log", ".npmrc",
}

// TrackedFiles enumerates, relative to dir and sorted, every file that
// would ship in a published tarball for dir. This is the single canonical
// filter shared by Pack (§4.C) and the Fingerprinter (§4.B) — per the open
// point, using one call site for both guarantees the
// unchanged-no-publish invariant never drifts from what actually gets
// published.
func TrackedFiles(dir string) ([]string, error) {
	patterns, err := readIgnoreFile(filepath.Join(dir, ".pkglabignore"))
	if err != nil {
		return nil, err
	}

	var out []string
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if matchesAny(rel, info.IsDir(), defaultIgnore) || matchesAny(rel, info.IsDir(), patterns) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: fixed filename within the package directory
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

func matchesAny(relPath string, isDir bool, patterns []string) bool {
	base := filepath.Base(relPath)
	for _, p := range patterns {
		p = strings.TrimSuffix(p, "/")
		if base == p || relPath == p {
			return true
		}
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
		if ok, _ := filepath.Match(p, relPath); ok {
			return true
		}
		if isDir && strings.HasPrefix(relPath+"/", p+"/") {
			return true
		}
	}
	return false
}
