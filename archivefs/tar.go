package archivefs

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

var ErrSparse = errors.New("sparse tar entries are not supported")

func newTar(r io.ReaderAt, modTime time.Time) (*Fs, error) {
	root := newDir(".", modTime)
	if err := indexTar(r, root); err != nil {
		return nil, err
	}
	root.finalize()
	return &Fs{root: root}, nil
}

func indexTar(r io.ReaderAt, root *dir) error {
	countingR := &countingReader{R: io.NewSectionReader(r, 0, math.MaxInt64-1)}
	tr := tar.NewReader(countingR)

	for {
		h, err := tr.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read tar archive: %w", err)
		}

		name, ok := cleanEntryName(h.Name)
		if !ok {
			continue
		}

		switch {
		case h.Typeflag == tar.TypeDir:
			root.add(name, &dir{name: h.FileInfo().Name(), fi: h.FileInfo(), modTime: h.ModTime, files: map[string]entry{}})
		case h.Typeflag == tar.TypeLink:
			target, ok := cleanEntryName(h.Linkname)
			if !ok {
				continue
			}
			ent, err := root.lookup(target)
			if err != nil {
				// link to an entry we have not seen or skipped.
				continue
			}
			if f, ok := ent.(*file); ok {
				root.add(name, &file{fi: renamedInfo{FileInfo: f.fi, name: h.FileInfo().Name()}, reader: f.reader})
			}
		case isSparse(h):
			return fmt.Errorf("%w: %q", ErrSparse, h.Name)
		case h.FileInfo().Mode().IsRegular():
			start, size := int64(countingR.Count), h.Size
			root.add(name, &file{
				fi: h.FileInfo(),
				reader: func() (readSeekReaderAt, error) {
					return io.NewSectionReader(r, start, size), nil
				},
			})
		default:
			// symlinks, devices and fifos have no place in served content.
		}
	}
}

func isSparse(h *tar.Header) bool {
	if h.Typeflag == tar.TypeGNUSparse {
		return true
	}
	for _, k := range []string{"GNU.sparse.major", "GNU.sparse.map", "GNU.sparse.size"} {
		if _, ok := h.PAXRecords[k]; ok {
			return true
		}
	}
	return false
}

type countingReader struct {
	R     *io.SectionReader
	Count int
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.R.Read(p)
	r.Count += n
	return n, err
}

// Seek will be used by tar.Reader.Next to skip bodies.
func (r *countingReader) Seek(offset int64, whence int) (int64, error) {
	n, err := r.R.Seek(offset, whence)
	if err == nil {
		r.Count = int(n)
	}
	return n, err
}
