package archivefs

import (
	"io"
	"io/fs"
	"time"
)

// entry is a static, stateless node in the archive index.
type entry interface {
	info() fs.FileInfo
	open(path string) (fs.File, error)
}

// readSeekReaderAt is what an opened regular file reads from.
// Both *io.SectionReader and *bytes.Reader satisfy it.
type readSeekReaderAt interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

func pathErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if err == io.EOF {
		return err
	}
	return &fs.PathError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// synthDirInfo describes a directory implied by nested entries
// that has no entry of its own in the archive.
type synthDirInfo struct {
	name    string
	modTime time.Time
}

func (i synthDirInfo) Name() string       { return i.name }
func (i synthDirInfo) Size() int64        { return 0 }
func (i synthDirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (i synthDirInfo) ModTime() time.Time { return i.modTime }
func (i synthDirInfo) IsDir() bool        { return true }
func (i synthDirInfo) Sys() any           { return nil }
