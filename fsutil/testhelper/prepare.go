// Package testhelper builds fixture trees from a compact line syntax.
//
//	"dir/"                 creates a directory (and its parents)
//	"dir/ 0o700"           same, with permission
//	"path/to/file: text"   writes a file, creating parents
//	"path: 0o600 text"     same, with permission
//	`path: "quoted text"`  content is a Go quoted string
//	"path@1700000000: x"   same, modification time set to the unix second
package testhelper

import (
	"cmp"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

type LineKind string

const (
	LineKindMkdir     LineKind = "mkdir"
	LineKindWriteFile LineKind = "write_file"
)

type LineDirection struct {
	LineKind   LineKind
	Permission fs.FileMode
	Path       string
	Content    []byte
	ModTime    time.Time
}

// ExecuteLines applies every line to fsys under baseDir.
func ExecuteLines(fsys afero.Fs, baseDir string, lines ...string) error {
	for _, line := range lines {
		l := ParseLine(line)
		if l.LineKind == "" {
			return fmt.Errorf("unknown line %q", line)
		}
		if err := l.Execute(fsys, baseDir); err != nil {
			return err
		}
	}
	return nil
}

// MustExecuteLines is like [ExecuteLines] but panics on error.
func MustExecuteLines(fsys afero.Fs, baseDir string, lines ...string) {
	if err := ExecuteLines(fsys, baseDir, lines...); err != nil {
		panic(err)
	}
}

func ParseLine(txt string) LineDirection {
	switch {
	case strings.HasSuffix(txt, "/") || strings.Contains(txt, "/ "):
		path, suf, _ := strings.Cut(strings.TrimSuffix(txt, "/"), "/ ")
		var perm uint64
		if suf != "" {
			var err error
			perm, err = strconv.ParseUint(suf, 0, 32)
			if err != nil {
				return LineDirection{}
			}
		}
		return LineDirection{LineKind: LineKindMkdir, Path: path, Permission: fs.FileMode(perm)}
	case strings.Contains(txt, ": "):
		path, rest, _ := strings.Cut(txt, ": ")
		l := LineDirection{LineKind: LineKindWriteFile, Path: path}

		if p, mtime, ok := strings.Cut(path, "@"); ok {
			sec, err := strconv.ParseInt(mtime, 10, 64)
			if err != nil {
				return LineDirection{}
			}
			l.Path = p
			l.ModTime = time.Unix(sec, 0)
		}

		if head, tail, ok := strings.Cut(rest, " "); ok && strings.HasPrefix(head, "0") && len(head) > 1 {
			perm, err := strconv.ParseUint(head, 0, 32)
			if err != nil {
				return LineDirection{}
			}
			l.Permission = fs.FileMode(perm)
			rest = tail
		}

		if strings.HasPrefix(rest, `"`) || strings.HasPrefix(rest, "`") {
			unquoted, err := strconv.Unquote(rest)
			if err != nil {
				return LineDirection{}
			}
			rest = unquoted
		}
		l.Content = []byte(rest)
		return l
	}
	return LineDirection{}
}

func (l LineDirection) Execute(fsys afero.Fs, baseDir string) error {
	path := filepath.Join(baseDir, filepath.FromSlash(l.Path))
	switch l.LineKind {
	case LineKindMkdir:
		if err := fsys.MkdirAll(path, fs.ModePerm); err != nil {
			return err
		}
		return fsys.Chmod(path, fs.ModeDir|cmp.Or(l.Permission, 0o755)&fs.ModePerm)
	case LineKindWriteFile:
		if err := fsys.MkdirAll(filepath.Dir(path), fs.ModePerm); err != nil {
			return err
		}
		if err := afero.WriteFile(fsys, path, l.Content, cmp.Or(l.Permission, 0o644)&fs.ModePerm); err != nil {
			return err
		}
		if !l.ModTime.IsZero() {
			return fsys.Chtimes(path, l.ModTime, l.ModTime)
		}
		return nil
	}
	return nil
}
