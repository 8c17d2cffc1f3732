package archivefs

import (
	"bytes"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

func newZip(r io.ReaderAt, size int64, modTime time.Time) (*Fs, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}

	root := newDir(".", modTime)
	for _, f := range zr.File {
		name, ok := cleanEntryName(f.Name)
		if !ok {
			continue
		}
		info := f.FileInfo()
		switch {
		case strings.HasSuffix(f.Name, "/") || info.IsDir():
			root.add(name, &dir{name: info.Name(), fi: info, modTime: info.ModTime(), files: map[string]entry{}})
		case info.Mode().IsRegular():
			root.add(name, &file{fi: info, reader: zipReader(r, f)})
		}
	}
	root.finalize()
	return &Fs{root: root}, nil
}

// zipReader reads stored entries in place and inflates compressed ones into memory,
// so that opened files are always seekable.
func zipReader(r io.ReaderAt, f *zip.File) func() (readSeekReaderAt, error) {
	return func() (readSeekReaderAt, error) {
		if f.Method == zip.Store {
			off, err := f.DataOffset()
			if err != nil {
				return nil, err
			}
			return io.NewSectionReader(r, off, int64(f.UncompressedSize64)), nil
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(b), nil
	}
}

// renamedInfo reports name instead of the wrapped info's own name.
type renamedInfo struct {
	fs.FileInfo
	name string
}

func (i renamedInfo) Name() string {
	return i.name
}
