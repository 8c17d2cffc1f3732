package archivefs

import (
	"fmt"
	"io"
	"io/fs"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ngicks/go-devrun/fsutil/errdef"
)

type dir struct {
	name    string
	fi      fs.FileInfo // nil unless the archive has an entry for this directory.
	modTime time.Time
	files   map[string]entry
	names   []string // sorted by finalize.
}

func newDir(name string, modTime time.Time) *dir {
	return &dir{name: name, modTime: modTime, files: make(map[string]entry)}
}

func (d *dir) info() fs.FileInfo {
	if d.fi != nil {
		return d.fi
	}
	return synthDirInfo{name: d.name, modTime: d.modTime}
}

func (d *dir) open(path string) (fs.File, error) {
	return &openDir{path: path, dir: d}, nil
}

// add places ent at the slash separated name.
// Intermediate directories are created as needed.
// A later entry replaces an earlier one with the same name,
// except that a directory entry only updates the info of an existing directory.
func (d *dir) add(name string, ent entry) {
	current := d
	for {
		component, rest, more := strings.Cut(name, "/")
		if !more {
			if d2, ok := ent.(*dir); ok {
				if existing, ok := current.files[component].(*dir); ok {
					existing.fi = d2.fi
					return
				}
			}
			current.files[component] = ent
			return
		}
		child, ok := current.files[component].(*dir)
		if !ok {
			child = newDir(component, d.modTime)
			current.files[component] = child
		}
		current = child
		name = rest
	}
}

func (d *dir) lookup(name string) (entry, error) {
	if name == "." {
		return d, nil
	}
	current := d
	for {
		component, rest, more := strings.Cut(name, "/")
		child := current.files[component]
		if child == nil {
			return nil, fs.ErrNotExist
		}
		if !more {
			return child, nil
		}
		next, ok := child.(*dir)
		if !ok {
			return nil, errdef.ENOTDIR
		}
		current = next
		name = rest
	}
}

func (d *dir) finalize() {
	d.names = slices.Sorted(maps.Keys(d.files))
	for _, name := range d.names {
		if child, ok := d.files[name].(*dir); ok {
			child.finalize()
		}
	}
}

func (d *dir) readDir() []fs.DirEntry {
	out := make([]fs.DirEntry, len(d.names))
	for i, name := range d.names {
		out[i] = fs.FileInfoToDirEntry(d.files[name].info())
	}
	return out
}

var (
	_ fs.File        = (*openDir)(nil)
	_ fs.ReadDirFile = (*openDir)(nil)
)

type openDir struct {
	mu     sync.Mutex
	closed bool
	cursor int
	dir    *dir
	path   string
}

func (d *openDir) checkClosed(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return pathErr(op, d.path, fs.ErrClosed)
	}
	return nil
}

func (d *openDir) Name() string {
	return d.path
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	if err := d.checkClosed("stat"); err != nil {
		return nil, err
	}
	return d.dir.info(), nil
}

func (d *openDir) Read([]byte) (int, error) {
	if err := d.checkClosed("read"); err != nil {
		return 0, err
	}
	return 0, pathErr("read", d.path, errdef.EISDIR)
}

// Seek only rewinds. Any whence other than (0, io.SeekStart) is rejected.
func (d *openDir) Seek(offset int64, whence int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, pathErr("seek", d.path, fs.ErrClosed)
	}
	if offset != 0 || whence != io.SeekStart {
		return 0, pathErr("seek", d.path, fmt.Errorf("offset %d whence %d: %w", offset, whence, fs.ErrInvalid))
	}
	d.cursor = 0
	return 0, nil
}

func (d *openDir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	// double close is fine for this.
	d.closed = true
	return nil
}

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, pathErr("readdir", d.path, fs.ErrClosed)
	}

	names := d.dir.names
	if d.cursor >= len(names) {
		if n <= 0 {
			return nil, nil
		}
		return nil, io.EOF
	}

	if n <= 0 {
		n = len(names) - d.cursor
	}

	out := make([]fs.DirEntry, min(n, len(names)-d.cursor))
	for i := range out {
		out[i] = fs.FileInfoToDirEntry(d.dir.files[names[d.cursor]].info())
		d.cursor++
	}
	return out, nil
}
