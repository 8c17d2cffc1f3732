package overlay

import (
	"io"
	"io/fs"
	"path/filepath"

	"github.com/ngicks/go-devrun/archivefs"
	"github.com/spf13/afero"
)

var _ WritableSource = (*dirSource)(nil)

// dirSource is a live directory. Reads and writes go straight to the backing afero.Fs.
type dirSource struct {
	fsys     afero.Fs
	location string
}

func (s *dirSource) Stat(name string) (fs.FileInfo, error) {
	return s.fsys.Stat(filepath.FromSlash(name))
}

func (s *dirSource) ReadDir(name string) ([]fs.DirEntry, error) {
	// sorted by name.
	infos, err := afero.ReadDir(s.fsys, filepath.FromSlash(name))
	if err != nil {
		return nil, err
	}
	out := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		out[i] = fs.FileInfoToDirEntry(info)
	}
	return out, nil
}

func (s *dirSource) Open(name string) (fs.File, error) {
	f, err := s.fsys.Open(filepath.FromSlash(name))
	if err != nil {
		return nil, err
	}
	return dirFile{f}, nil
}

// dirFile reports io.EOF on short ReadAt, which not every afero.File does.
type dirFile struct {
	afero.File
}

func (f dirFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.File.ReadAt(p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (s *dirSource) Location(name string) string {
	if name == "." {
		return s.location
	}
	return filepath.Join(s.location, filepath.FromSlash(name))
}

func (s *dirSource) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return afero.WriteFile(s.fsys, filepath.FromSlash(name), data, perm)
}

func (s *dirSource) MkdirAll(name string, perm fs.FileMode) error {
	return s.fsys.MkdirAll(filepath.FromSlash(name), perm)
}

func (s *dirSource) Remove(name string) error {
	return s.fsys.Remove(filepath.FromSlash(name))
}

func (s *dirSource) Close() error {
	return nil
}

// archiveSource is an immutable archive. Entries are addressed below the mount
// prefix, so the prefix is stripped before reaching here.
type archiveSource struct {
	fsys *archivefs.Fs
}

func (s *archiveSource) Stat(name string) (fs.FileInfo, error) {
	return s.fsys.Stat(name)
}

func (s *archiveSource) ReadDir(name string) ([]fs.DirEntry, error) {
	return s.fsys.ReadDir(name)
}

func (s *archiveSource) Open(name string) (fs.File, error) {
	return s.fsys.Open(name)
}

func (s *archiveSource) Location(name string) string {
	if name == "." {
		return s.fsys.Name()
	}
	return s.fsys.Name() + "!/" + name
}

func (s *archiveSource) Close() error {
	return s.fsys.Close()
}
