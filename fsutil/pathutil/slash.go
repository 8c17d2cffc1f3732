// Package pathutil handles the slash separated paths used inside virtual trees.
//
// Virtual paths never carry a leading or trailing slash.
// The root is represented as "" by this package and as "." when handed to io/fs.
package pathutil

import (
	"io/fs"
	"iter"
	"path"
	"strings"
)

// Clean normalizes name into the virtual form.
// Leading and trailing slashes are dropped, "." and "" both become "".
// A name escaping the root via ".." is rejected with [fs.ErrInvalid].
func Clean(name string) (string, error) {
	name = path.Clean(strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/"))
	switch {
	case name == "..", strings.HasPrefix(name, "../"):
		return "", fs.ErrInvalid
	case name == ".":
		return "", nil
	}
	return name, nil
}

// FsName converts a cleaned virtual path into an io/fs name.
func FsName(name string) string {
	if name == "" {
		return "."
	}
	return name
}

// Rel returns the part of name below mount.
// ok is false when name is not mount itself nor nested under it.
func Rel(mount, name string) (rel string, ok bool) {
	switch {
	case mount == "":
		return name, true
	case name == mount:
		return "", true
	case strings.HasPrefix(name, mount) && name[len(mount)] == '/':
		return name[len(mount)+1:], true
	}
	return "", false
}

// NextSegment returns the path element of mount that follows dir,
// when dir is a strict ancestor of mount.
//
//	NextSegment("", "a/b") // "a", true
//	NextSegment("a", "a/b/c") // "b", true
//	NextSegment("a/b", "a/b") // "", false
func NextSegment(dir, mount string) (string, bool) {
	if mount == "" || dir == mount {
		return "", false
	}
	rest := mount
	if dir != "" {
		if !strings.HasPrefix(mount, dir+"/") {
			return "", false
		}
		rest = mount[len(dir)+1:]
	}
	seg, _, _ := strings.Cut(rest, "/")
	return seg, true
}

// Ancestors yields every strict ancestor directory of name, root first.
// The root "" is always yielded first for a non-root name.
func Ancestors(name string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if name == "" {
			return
		}
		if !yield("") {
			return
		}
		for i := 0; i < len(name); i++ {
			if name[i] == '/' {
				if !yield(name[:i]) {
					return
				}
			}
		}
	}
}

// Join joins a mount and a relative path, both already cleaned.
func Join(mount, rel string) string {
	switch {
	case mount == "":
		return rel
	case rel == "":
		return mount
	}
	return mount + "/" + rel
}
