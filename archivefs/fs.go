// Package archivefs exposes zip and tar archives as read-only [fs.FS] trees.
//
// The whole entry index is built when the archive is opened.
// Directories implied by nested entries are synthesized and
// carry the modification time of the archive itself.
package archivefs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

var ErrUnknownFormat = errors.New("unknown archive format")

type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatTarGzip
	FormatTarZstd
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatTarGzip:
		return "tar.gz"
	case FormatTarZstd:
		return "tar.zst"
	}
	return "unknown"
}

// DetectFormat guesses the archive format from the file name.
// Java style archives (jar, war) and jszip bundles are zip files.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGzip
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZstd
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar
	}
	switch path.Ext(lower) {
	case ".zip", ".jar", ".war", ".jszip":
		return FormatZip
	}
	return FormatUnknown
}

var (
	_ fs.FS         = (*Fs)(nil)
	_ fs.StatFS     = (*Fs)(nil)
	_ fs.ReadDirFS  = (*Fs)(nil)
	_ fs.ReadFileFS = (*Fs)(nil)
)

// Fs is a read-only view of an archive.
type Fs struct {
	name   string
	root   *dir
	closer io.Closer
}

// Open opens name on host and indexes it according to [DetectFormat].
//
// Zip and plain tar archives are read in place and keep the host file open until Close.
// Compressed tar archives are decompressed into memory once.
func Open(host afero.Fs, name string) (*Fs, error) {
	format := DetectFormat(name)
	if format == FormatUnknown {
		return nil, pathErr("open", name, ErrUnknownFormat)
	}

	f, err := host.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	var fsys *Fs
	switch format {
	case FormatZip:
		fsys, err = newZip(f, info.Size(), info.ModTime())
	case FormatTar:
		fsys, err = newTar(f, info.ModTime())
	case FormatTarGzip, FormatTarZstd:
		var b []byte
		b, err = decompress(format, io.NewSectionReader(f, 0, info.Size()))
		_ = f.Close()
		if err != nil {
			return nil, pathErr("open", name, err)
		}
		fsys, err = newTar(bytes.NewReader(b), info.ModTime())
		if err == nil {
			fsys.name = name
		}
		return fsys, pathErr("open", name, err)
	}
	if err != nil {
		_ = f.Close()
		return nil, pathErr("open", name, err)
	}
	fsys.name = name
	fsys.closer = f
	return fsys, nil
}

func decompress(format Format, r io.Reader) ([]byte, error) {
	switch format {
	case FormatTarGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	case FormatTarZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

// NewZip indexes a zip archive. The returned Fs does not own r.
func NewZip(r io.ReaderAt, size int64) (*Fs, error) {
	return newZip(r, size, time.Time{})
}

// NewTar indexes an uncompressed tar archive. The returned Fs does not own r.
func NewTar(r io.ReaderAt) (*Fs, error) {
	return newTar(r, time.Time{})
}

// Name returns the host path the archive was opened from, if any.
func (fsys *Fs) Name() string {
	return fsys.name
}

func (fsys *Fs) lookup(op, name string) (entry, error) {
	if !fs.ValidPath(name) {
		return nil, pathErr(op, name, fs.ErrInvalid)
	}
	ent, err := fsys.root.lookup(name)
	if err != nil {
		return nil, pathErr(op, name, err)
	}
	return ent, nil
}

func (fsys *Fs) Open(name string) (fs.File, error) {
	ent, err := fsys.lookup("open", name)
	if err != nil {
		return nil, err
	}
	return ent.open(name)
}

func (fsys *Fs) Stat(name string) (fs.FileInfo, error) {
	ent, err := fsys.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	return ent.info(), nil
}

// ReadDir returns entries sorted by name.
func (fsys *Fs) ReadDir(name string) ([]fs.DirEntry, error) {
	ent, err := fsys.lookup("readdir", name)
	if err != nil {
		return nil, err
	}
	d, ok := ent.(*dir)
	if !ok {
		return nil, pathErr("readdir", name, fs.ErrInvalid)
	}
	return d.readDir(), nil
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
		return nil, pathErr("read", name, fs.ErrInvalid)
	}
	b := make([]byte, info.Size())
	_, err = io.ReadFull(f, b)
	if err != nil {
		return nil, pathErr("read", name, err)
	}
	return b, nil
}

// Close releases the host file. It is safe to call more than once.
func (fsys *Fs) Close() error {
	if fsys.closer == nil {
		return nil
	}
	c := fsys.closer
	fsys.closer = nil
	return c.Close()
}

// cleanEntryName converts a raw archive member name into an io/fs name.
// ok is false for the archive root and names escaping it.
func cleanEntryName(name string) (string, bool) {
	name = strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/")
	name = path.Clean(name)
	if name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return "", false
	}
	return name, true
}
