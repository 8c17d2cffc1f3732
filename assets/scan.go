package assets

import (
	"errors"
	"io/fs"

	"github.com/bmatcuk/doublestar/v4"
)

// Scan walks root in fsys and returns the paths, relative to root, matching any of includes
// and none of excludes. Patterns are doublestar globs matched against the relative path.
func Scan(fsys fs.FS, root string, includes, excludes []string) ([]string, error) {
	if root == "" {
		root = "."
	}
	var out []string
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel := p
		if root != "." {
			rel = p[len(root)+1:]
		}
		if matchAny(includes, rel) && !matchAny(excludes, rel) {
			out = append(out, rel)
		}
		return nil
	})
	return out, err
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
