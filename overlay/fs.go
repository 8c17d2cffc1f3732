// Package overlay merges directories, archives and generated content
// into a single read-mostly virtual tree.
//
// Every [Layer] is mounted at a virtual path. Layers are ordered by priority,
// the last one winning, and directories are synthesized from whatever is
// mounted or nested below them. Resolution is a pure function of the layer
// set and the path: an [Fs] is never restructured after construction.
// Callers replace it wholesale instead.
package overlay

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"

	"github.com/ngicks/go-devrun/fsutil"
	"github.com/ngicks/go-devrun/fsutil/errdef"
	"github.com/ngicks/go-devrun/fsutil/pathutil"
)

// ErrReadOnlyLayer is returned when a write could only land on an archive layer.
var ErrReadOnlyLayer = fmt.Errorf("layer is read-only: %w", errdef.EROFS)

type Fs struct {
	layers Layers
}

// New returns an Fs over layers, priority increasing with the index.
// The Fs owns the layers: Close closes their sources.
func New(layers ...Layer) *Fs {
	return &Fs{layers: slices.Clone(layers)}
}

// Layers returns a copy of the layer set.
func (fsys *Fs) Layers() Layers {
	return slices.Clone(fsys.layers)
}

// Resolution is where a virtual path was found.
type Resolution struct {
	// Index of the layer in the priority order.
	Index int
	Layer Layer
	// Location is the real location of the content.
	// It is empty for directories synthesized above a mount point.
	Location string
	Info     fs.FileInfo
}

func clean(op, name string) (string, error) {
	n, err := pathutil.Clean(name)
	if err != nil {
		return "", fsutil.WrapPathErr(op, name, err)
	}
	return n, nil
}

// Resolve returns the highest priority layer reporting name as existing.
func (fsys *Fs) Resolve(name string) (Resolution, error) {
	n, err := clean("resolve", name)
	if err != nil {
		return Resolution{}, err
	}
	idx, info, err := fsys.layers.stat(n)
	if err != nil {
		return Resolution{}, fsutil.WrapPathErr("resolve", name, err)
	}
	l := fsys.layers[idx]
	return Resolution{Index: idx, Layer: l, Location: l.location(n), Info: info}, nil
}

func (fsys *Fs) Stat(name string) (fs.FileInfo, error) {
	n, err := clean("stat", name)
	if err != nil {
		return nil, err
	}
	if n == "" {
		// the root always exists, even over an empty layer set.
		_, info, err := fsys.layers.stat(n)
		if err != nil {
			return dirInfo{name: "."}, nil
		}
		return info, nil
	}
	_, info, err := fsys.layers.stat(n)
	if err != nil {
		return nil, fsutil.WrapPathErr("stat", name, err)
	}
	return info, nil
}

// ReadDir returns the union of the directory listings of all layers exposing name
// as a directory, sorted by name. Each entry describes the winning layer's child.
func (fsys *Fs) ReadDir(name string) ([]fs.DirEntry, error) {
	n, err := clean("readdir", name)
	if err != nil {
		return nil, err
	}
	dirents, err := fsys.layers.readDir(n)
	if err != nil {
		if n == "" && fsutil.IsMissing(err) {
			return nil, nil
		}
		return nil, fsutil.WrapPathErr("readdir", name, err)
	}
	return dirents, nil
}

// List is like ReadDir but returns names only.
func (fsys *Fs) List(name string) ([]string, error) {
	dirents, err := fsys.ReadDir(name)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(dirents))
	for i, d := range dirents {
		names[i] = d.Name()
	}
	return names, nil
}

// Open opens name from the winning layer.
// Directories are opened as a merged view whose ReadDir lists the union.
func (fsys *Fs) Open(name string) (fs.File, error) {
	n, err := clean("open", name)
	if err != nil {
		return nil, err
	}
	info, err := fsys.Stat(n)
	if err != nil {
		return nil, fsutil.WrapPathErr("open", name, err)
	}
	if info.IsDir() {
		return &mergedDir{fsys: fsys, name: n, info: info}, nil
	}
	res, err := fsys.Resolve(n)
	if err != nil {
		return nil, err
	}
	rel, _ := res.Layer.rel(n)
	return res.Layer.src.Open(pathutil.FsName(rel))
}

func (fsys *Fs) ReadFile(name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fsutil.WrapPathErr("read", name, errdef.EISDIR)
	}
	var buf bytes.Buffer
	buf.Grow(int(info.Size()))
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, fsutil.WrapPathErr("read", name, err)
	}
	return buf.Bytes(), nil
}

// writeTarget finds the layer a write to n lands on: the highest priority writable
// layer covering n that already has n or its parent directory. A generated layer
// is only a target for its existing output.
func (fsys *Fs) writeTarget(op, name, n string) (Layer, string, error) {
	if n == "" {
		return Layer{}, "", fsutil.WrapPathErr(op, name, errdef.EISDIR)
	}
	var readOnly bool
	for _, l := range slices.Backward(fsys.layers) {
		rel, ok := l.rel(n)
		if !ok || rel == "" {
			continue
		}
		if !l.Writable() {
			readOnly = true
			continue
		}
		if _, err := l.src.Stat(rel); err == nil {
			return l, rel, nil
		}
		// generated layers only take overwrites of the output they produce.
		if l.kind == KindGenerated {
			continue
		}
		if info, err := l.src.Stat(pathutil.FsName(parentOf(rel))); err == nil && info.IsDir() {
			return l, rel, nil
		}
	}
	if readOnly {
		return Layer{}, "", fsutil.WrapPathErr(op, name, ErrReadOnlyLayer)
	}
	return Layer{}, "", fsutil.WrapPathErr(op, name, fs.ErrNotExist)
}

// WriteFile writes data to the highest priority writable layer covering name.
// Writing where only archive layers could take it fails with [ErrReadOnlyLayer].
func (fsys *Fs) WriteFile(name string, data []byte, perm fs.FileMode) error {
	n, err := clean("write", name)
	if err != nil {
		return err
	}
	l, rel, err := fsys.writeTarget("write", name, n)
	if err != nil {
		return err
	}
	return fsutil.WrapPathErr("write", name, l.src.(WritableSource).WriteFile(rel, data, perm))
}

// MkdirAll creates name and its parents in the highest priority directory layer covering it.
// It does nothing when name is already a directory in the overlay.
func (fsys *Fs) MkdirAll(name string, perm fs.FileMode) error {
	n, err := clean("mkdir", name)
	if err != nil {
		return err
	}
	if info, err := fsys.Stat(n); err == nil {
		if info.IsDir() {
			return nil
		}
		return fsutil.WrapPathErr("mkdir", name, errdef.ENOTDIR)
	}
	var readOnly bool
	for _, l := range slices.Backward(fsys.layers) {
		rel, ok := l.rel(n)
		if !ok {
			continue
		}
		if l.kind != KindDirectory || !l.Writable() {
			readOnly = true
			continue
		}
		return fsutil.WrapPathErr("mkdir", name, l.src.(WritableSource).MkdirAll(pathutil.FsName(rel), perm))
	}
	if readOnly {
		return fsutil.WrapPathErr("mkdir", name, ErrReadOnlyLayer)
	}
	return fsutil.WrapPathErr("mkdir", name, fs.ErrNotExist)
}

// Remove removes name from the layer it resolves to.
// Content of lower layers, if any, becomes visible again.
func (fsys *Fs) Remove(name string) error {
	n, err := clean("remove", name)
	if err != nil {
		return err
	}
	res, err := fsys.Resolve(n)
	if err != nil {
		return fsutil.WrapPathErr("remove", name, err)
	}
	rel, ok := res.Layer.rel(n)
	if !ok || rel == "" {
		// mount points and the directories above them are not removable.
		return fsutil.WrapPathErr("remove", name, fs.ErrPermission)
	}
	if !res.Layer.Writable() {
		return fsutil.WrapPathErr("remove", name, ErrReadOnlyLayer)
	}
	return fsutil.WrapPathErr("remove", name, res.Layer.src.(WritableSource).Remove(rel))
}

// Close closes every layer source.
func (fsys *Fs) Close() error {
	return fsys.layers.close()
}

func parentOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}
