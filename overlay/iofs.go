package overlay

import (
	"io"
	"io/fs"
	"strings"
	"sync"

	"github.com/ngicks/go-devrun/fsutil/errdef"
)

var (
	_ fs.FS         = (*ioFS)(nil)
	_ fs.StatFS     = (*ioFS)(nil)
	_ fs.ReadDirFS  = (*ioFS)(nil)
	_ fs.ReadFileFS = (*ioFS)(nil)
)

// IoFS returns fsys as a strict [fs.FS]: names must satisfy [fs.ValidPath]
// and must not contain a backslash.
func (fsys *Fs) IoFS() fs.FS {
	return &ioFS{fsys: fsys}
}

type ioFS struct {
	fsys *Fs
}

func validate(op, name string) error {
	if !fs.ValidPath(name) || strings.Contains(name, `\`) {
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return nil
}

func (f *ioFS) Open(name string) (fs.File, error) {
	if err := validate("open", name); err != nil {
		return nil, err
	}
	return f.fsys.Open(name)
}

func (f *ioFS) Stat(name string) (fs.FileInfo, error) {
	if err := validate("stat", name); err != nil {
		return nil, err
	}
	return f.fsys.Stat(name)
}

func (f *ioFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if err := validate("readdir", name); err != nil {
		return nil, err
	}
	return f.fsys.ReadDir(name)
}

func (f *ioFS) ReadFile(name string) ([]byte, error) {
	if err := validate("read", name); err != nil {
		return nil, err
	}
	return f.fsys.ReadFile(name)
}

var _ fs.ReadDirFile = (*mergedDir)(nil)

// mergedDir is a directory opened through the overlay.
// The listing is taken once, on the first ReadDir call.
type mergedDir struct {
	fsys *Fs
	name string
	info fs.FileInfo

	mu      sync.Mutex
	closed  bool
	listed  bool
	dirents []fs.DirEntry
	cursor  int
}

func (d *mergedDir) Stat() (fs.FileInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, &fs.PathError{Op: "stat", Path: d.name, Err: fs.ErrClosed}
	}
	return d.info, nil
}

func (d *mergedDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: errdef.EISDIR}
}

func (d *mergedDir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *mergedDir) ReadDir(n int) ([]fs.DirEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, &fs.PathError{Op: "readdir", Path: d.name, Err: fs.ErrClosed}
	}
	if !d.listed {
		dirents, err := d.fsys.ReadDir(d.name)
		if err != nil {
			return nil, err
		}
		d.dirents, d.listed = dirents, true
	}

	rest := d.dirents[d.cursor:]
	if n <= 0 {
		d.cursor = len(d.dirents)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	out := rest[:min(n, len(rest))]
	d.cursor += len(out)
	return out, nil
}
