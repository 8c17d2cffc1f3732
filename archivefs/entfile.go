package archivefs

import (
	"io/fs"
	"sync"
)

type file struct {
	fi     fs.FileInfo
	reader func() (readSeekReaderAt, error)
}

func (f *file) info() fs.FileInfo {
	return f.fi
}

func (f *file) open(path string) (fs.File, error) {
	r, err := f.reader()
	if err != nil {
		return nil, pathErr("open", path, err)
	}
	return &openFile{r: r, path: path, file: f}, nil
}

var _ fs.File = (*openFile)(nil)

type openFile struct {
	mu     sync.Mutex
	closed bool
	r      readSeekReaderAt
	path   string
	file   *file
}

func (f *openFile) checkClosed(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return pathErr(op, f.path, fs.ErrClosed)
	}
	return nil
}

func (f *openFile) Name() string {
	return f.path
}

func (f *openFile) Stat() (fs.FileInfo, error) {
	if err := f.checkClosed("stat"); err != nil {
		return nil, err
	}
	return f.file.fi, nil
}

func (f *openFile) Read(p []byte) (n int, err error) {
	if err := f.checkClosed("read"); err != nil {
		return 0, err
	}
	n, err = f.r.Read(p)
	return n, pathErr("read", f.path, err)
}

func (f *openFile) ReadAt(p []byte, off int64) (n int, err error) {
	if err := f.checkClosed("readat"); err != nil {
		return 0, err
	}
	n, err = f.r.ReadAt(p, off)
	return n, pathErr("readat", f.path, err)
}

func (f *openFile) Seek(offset int64, whence int) (int64, error) {
	if err := f.checkClosed("seek"); err != nil {
		return 0, err
	}
	n, err := f.r.Seek(offset, whence)
	return n, pathErr("seek", f.path, err)
}

func (f *openFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// double close is fine for this.
	f.closed = true
	return nil
}
