package overlay

import (
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/ngicks/go-devrun/archivefs"
	"github.com/ngicks/go-devrun/fsutil/errdef"
	"github.com/ngicks/go-devrun/fsutil/pathutil"
	"github.com/spf13/afero"
)

type Kind int

const (
	KindDirectory Kind = iota
	KindArchive
	KindGenerated
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "dir"
	case KindArchive:
		return "archive"
	case KindGenerated:
		return "generated"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Source is the content a [Layer] exposes below its mount point.
// Names are io/fs style: slash separated, unrooted, "." for the root.
type Source interface {
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	Open(name string) (fs.File, error)
	// Location describes where name really lives, e.g. a host path.
	Location(name string) string
	Close() error
}

// WritableSource is a Source that accepts writes.
type WritableSource interface {
	Source
	WriteFile(name string, data []byte, perm fs.FileMode) error
	MkdirAll(name string, perm fs.FileMode) error
	Remove(name string) error
}

// Layer is one content source of the overlay mounted at a virtual path.
//
// Layer is immutable after construction and never refers to another Layer.
type Layer struct {
	mount string
	kind  Kind
	src   Source
}

// NewLayer mounts src at mount. mount is cleaned into the virtual form,
// so "/", "" and "." all mean the root.
func NewLayer(mount string, kind Kind, src Source) (Layer, error) {
	m, err := pathutil.Clean(mount)
	if err != nil {
		return Layer{}, fmt.Errorf("mount %q: %w", mount, err)
	}
	if src == nil {
		return Layer{}, fmt.Errorf("mount %q: nil source", mount)
	}
	return Layer{mount: m, kind: kind, src: src}, nil
}

// NewDirLayer mounts an afero.Fs at mount. location is only used to describe the layer.
func NewDirLayer(mount string, fsys afero.Fs, location string) (Layer, error) {
	return NewLayer(mount, KindDirectory, &dirSource{fsys: fsys, location: location})
}

// NewOsDirLayer mounts the directory dir of host at mount.
func NewOsDirLayer(host afero.Fs, mount, dir string) (Layer, error) {
	return NewDirLayer(mount, afero.NewBasePathFs(host, dir), dir)
}

// NewArchiveLayer mounts an opened archive at mount. The layer owns the archive.
func NewArchiveLayer(mount string, a *archivefs.Fs) (Layer, error) {
	return NewLayer(mount, KindArchive, &archiveSource{fsys: a})
}

// NewGeneratedLayer mounts content produced on demand at mount.
func NewGeneratedLayer(mount string, src WritableSource) (Layer, error) {
	return NewLayer(mount, KindGenerated, src)
}

func (l Layer) Mount() string  { return l.mount }
func (l Layer) Kind() Kind     { return l.kind }
func (l Layer) Source() Source { return l.src }
func (l Layer) IsZero() bool   { return l.src == nil }
func (l Layer) String() string { return l.Descriptor() }

// Writable reports whether writes can be delegated to this layer.
// Archive layers never are.
func (l Layer) Writable() bool {
	if l.kind == KindArchive {
		return false
	}
	_, ok := l.src.(WritableSource)
	return ok
}

// Descriptor identifies the layer composition: kind, backing location and mount.
// Two layers with the same descriptor expose the same content at the same place.
func (l Layer) Descriptor() string {
	return fmt.Sprintf("%s:%s@/%s", l.kind, l.src.Location("."), l.mount)
}

// rel maps the virtual name into the source, if the layer covers it.
func (l Layer) rel(name string) (string, bool) {
	return pathutil.Rel(l.mount, name)
}

// stat reports name as seen through this layer.
// Strict ancestors of the mount point exist as synthesized directories.
func (l Layer) stat(name string) (fs.FileInfo, error) {
	if rel, ok := l.rel(name); ok {
		info, err := l.src.Stat(pathutil.FsName(rel))
		if err != nil {
			return nil, err
		}
		if rel == "" {
			// the source root is named after the mount point.
			return renamedInfo{FileInfo: info, name: baseName(name)}, nil
		}
		return info, nil
	}
	if _, ok := pathutil.NextSegment(name, l.mount); ok {
		return dirInfo{name: baseName(name)}, nil
	}
	return nil, fs.ErrNotExist
}

// readDir lists name as seen through this layer.
func (l Layer) readDir(name string) ([]fs.DirEntry, error) {
	if rel, ok := l.rel(name); ok {
		info, err := l.src.Stat(pathutil.FsName(rel))
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, errdef.ENOTDIR
		}
		return l.src.ReadDir(pathutil.FsName(rel))
	}
	if seg, ok := pathutil.NextSegment(name, l.mount); ok {
		info, err := l.stat(pathutil.Join(name, seg))
		if err != nil {
			return nil, err
		}
		return []fs.DirEntry{fs.FileInfoToDirEntry(info)}, nil
	}
	return nil, fs.ErrNotExist
}

func (l Layer) location(name string) string {
	if rel, ok := l.rel(name); ok {
		return l.src.Location(pathutil.FsName(rel))
	}
	return ""
}

func baseName(name string) string {
	if name == "" {
		return "."
	}
	return path.Base(name)
}

// dirInfo is a directory that exists only because something is mounted below it.
type dirInfo struct {
	name string
}

func (i dirInfo) Name() string       { return i.name }
func (i dirInfo) Size() int64        { return 0 }
func (i dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (i dirInfo) ModTime() time.Time { return time.Time{} }
func (i dirInfo) IsDir() bool        { return true }
func (i dirInfo) Sys() any           { return nil }

type renamedInfo struct {
	fs.FileInfo
	name string
}

func (i renamedInfo) Name() string {
	return i.name
}
