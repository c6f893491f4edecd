// Package discovery resolves the file sets that ForEachFile stages iterate over.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// Files resolves pattern relative to root and returns matching regular files,
// sorted and relative to root. Besides filepath.Glob syntax '**' matches
// directories recursively. A pattern whose base directory does not exist
// yields an empty set, not an error.
func Files(root, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	if root == "" {
		root = "."
	}

	matches, err := doublestar.Glob(os.DirFS(root), filepath.ToSlash(pattern), doublestar.WithFailOnIOErrors(), doublestar.WithFilesOnly())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("resolving %q failed: %w", pattern, err)
	}

	res := make([]string, 0, len(matches))
	for _, m := range matches {
		res = append(res, filepath.FromSlash(m))
	}
	slices.Sort(res)
	return res, nil
}
