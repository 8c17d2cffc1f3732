package scriptfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/dop251/goja"
	"github.com/ngicks/go-devrun/fsutil"
	"github.com/ngicks/go-devrun/overlay"
)

// shims back the java.io constructors of one runtime.
// Every access goes through the binding, so nothing works once the overlay is removed.
type shims struct {
	vm *goja.Runtime
	b  *overlay.Binding
}

func (s *shims) throw(err error) {
	panic(s.vm.NewGoError(err))
}

// name turns a script path into an overlay name. Relative paths are relative to the root
// and nothing resolves above it.
func name(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// pathArg accepts a path string or a java.io.File.
func pathArg(v goja.Value) (string, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", false
	}
	switch x := v.Export().(type) {
	case *javaFile:
		return x.path, true
	case string:
		return x, true
	}
	return v.String(), true
}

func (s *shims) newFile(call goja.ConstructorCall) *goja.Object {
	var p string
	switch len(call.Arguments) {
	case 0:
		s.throw(errors.New("java.io.File: path required"))
	case 1:
		p, _ = pathArg(call.Argument(0))
	default:
		parent, ok := pathArg(call.Argument(0))
		child, _ := pathArg(call.Argument(1))
		if ok {
			p = path.Join(parent, child)
		} else {
			p = child
		}
	}
	return s.vm.ToValue(&javaFile{s: s, path: p}).(*goja.Object)
}

// javaFile mirrors the commonly used part of java.io.File.
// Like its model, predicates report false rather than throw.
type javaFile struct {
	s    *shims
	path string
}

func (f *javaFile) fsys() (*overlay.Fs, error) {
	return f.s.b.Fs()
}

func (f *javaFile) stat() (fs.FileInfo, error) {
	fsys, err := f.fsys()
	if err != nil {
		return nil, err
	}
	info, err := fsys.Stat(name(f.path))
	if err != nil {
		if fsutil.IsMissing(err) {
			return nil, nil
		}
		return nil, err
	}
	return info, nil
}

func (f *javaFile) GetPath() string          { return f.path }
func (f *javaFile) ToString() string         { return f.path }
func (f *javaFile) GetName() string          { return path.Base("/" + name(f.path)) }
func (f *javaFile) GetAbsolutePath() string  { return "/" + name(f.path) }
func (f *javaFile) GetCanonicalPath() string { return f.GetAbsolutePath() }
func (f *javaFile) IsAbsolute() bool         { return strings.HasPrefix(f.path, "/") }

func (f *javaFile) GetParent() goja.Value {
	n := name(f.path)
	if n == "" {
		return goja.Null()
	}
	return f.s.vm.ToValue("/" + name(path.Dir(n)))
}

func (f *javaFile) GetParentFile() goja.Value {
	n := name(f.path)
	if n == "" {
		return goja.Null()
	}
	return f.s.vm.ToValue(&javaFile{s: f.s, path: "/" + name(path.Dir(n))})
}

func (f *javaFile) GetAbsoluteFile() *javaFile {
	return &javaFile{s: f.s, path: f.GetAbsolutePath()}
}

func (f *javaFile) Exists() (bool, error) {
	info, err := f.stat()
	return info != nil, err
}

func (f *javaFile) CanRead() (bool, error) {
	return f.Exists()
}

func (f *javaFile) IsDirectory() (bool, error) {
	info, err := f.stat()
	return info != nil && info.IsDir(), err
}

func (f *javaFile) IsFile() (bool, error) {
	info, err := f.stat()
	return info != nil && !info.IsDir(), err
}

// LastModified is in milliseconds; 0 when missing.
func (f *javaFile) LastModified() (int64, error) {
	info, err := f.stat()
	if info == nil {
		return 0, err
	}
	return info.ModTime().UnixMilli(), nil
}

func (f *javaFile) Length() (int64, error) {
	info, err := f.stat()
	if info == nil || info.IsDir() {
		return 0, err
	}
	return info.Size(), nil
}

func (f *javaFile) names() ([]string, error) {
	fsys, err := f.fsys()
	if err != nil {
		return nil, err
	}
	if info, err := fsys.Stat(name(f.path)); err != nil || !info.IsDir() {
		return nil, nil
	}
	names, err := fsys.List(name(f.path))
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// List returns the child names, or null when f is not a directory.
func (f *javaFile) List() (goja.Value, error) {
	names, err := f.names()
	if err != nil || names == nil {
		return goja.Null(), err
	}
	items := make([]any, len(names))
	for i, n := range names {
		items[i] = n
	}
	return f.s.vm.NewArray(items...), nil
}

// ListFiles is List as java.io.File objects.
func (f *javaFile) ListFiles() (goja.Value, error) {
	names, err := f.names()
	if err != nil || names == nil {
		return goja.Null(), err
	}
	items := make([]any, len(names))
	for i, n := range names {
		items[i] = &javaFile{s: f.s, path: path.Join(f.GetAbsolutePath(), n)}
	}
	return f.s.vm.NewArray(items...), nil
}

// Mkdir creates f only when its parent already is a directory.
func (f *javaFile) Mkdir() (bool, error) {
	n := name(f.path)
	if n == "" {
		return false, nil
	}
	parent := &javaFile{s: f.s, path: "/" + name(path.Dir(n))}
	if ok, err := parent.IsDirectory(); !ok || err != nil {
		return false, err
	}
	return f.Mkdirs()
}

func (f *javaFile) Mkdirs() (bool, error) {
	if ok, err := f.Exists(); ok || err != nil {
		return false, err
	}
	fsys, err := f.fsys()
	if err != nil {
		return false, err
	}
	return fsys.MkdirAll(name(f.path), fs.ModePerm) == nil, nil
}

func (f *javaFile) Delete() (bool, error) {
	fsys, err := f.fsys()
	if err != nil {
		return false, err
	}
	return fsys.Remove(name(f.path)) == nil, nil
}

func (s *shims) newInputStream(call goja.ConstructorCall) *goja.Object {
	p, ok := pathArg(call.Argument(0))
	if !ok {
		s.throw(errors.New("java.io.FileInputStream: file required"))
	}
	fsys, err := s.b.Fs()
	if err != nil {
		s.throw(err)
	}
	b, err := fsys.ReadFile(name(p))
	if err != nil {
		s.throw(fmt.Errorf("java.io.FileNotFoundException: %w", err))
	}
	return s.vm.ToValue(&inputStream{r: bytes.NewReader(b)}).(*goja.Object)
}

// inputStream reads a snapshot of the file taken when it was opened.
type inputStream struct {
	r      *bytes.Reader
	closed bool
}

var errClosed = errors.New("java.io.IOException: stream closed")

// Read returns the next byte, or -1 at the end.
func (s *inputStream) Read() (int, error) {
	if s.closed {
		return 0, errClosed
	}
	b, err := s.r.ReadByte()
	if err != nil {
		return -1, nil
	}
	return int(b), nil
}

// ReadText returns the rest of the stream as text.
func (s *inputStream) ReadText() (string, error) {
	if s.closed {
		return "", errClosed
	}
	var buf strings.Builder
	_, _ = s.r.WriteTo(&buf)
	return buf.String(), nil
}

func (s *inputStream) Available() int {
	return s.r.Len()
}

func (s *inputStream) Skip(n int64) int64 {
	n = min(max(n, 0), int64(s.r.Len()))
	_, _ = s.r.Seek(n, io.SeekCurrent)
	return n
}

func (s *inputStream) Close() {
	s.closed = true
}

func (s *shims) newOutputStream(call goja.ConstructorCall) *goja.Object {
	p, ok := pathArg(call.Argument(0))
	if !ok {
		s.throw(errors.New("java.io.FileOutputStream: file required"))
	}
	out := &outputStream{s: s, name: name(p)}
	if call.Argument(1).ToBoolean() {
		fsys, err := s.b.Fs()
		if err != nil {
			s.throw(err)
		}
		if b, err := fsys.ReadFile(out.name); err == nil {
			out.buf.Write(b)
		}
	}
	// the file is created, or truncated, right away.
	if err := out.Flush(); err != nil {
		s.throw(fmt.Errorf("java.io.FileNotFoundException: %w", err))
	}
	return s.vm.ToValue(out).(*goja.Object)
}

// outputStream buffers writes and stores the whole content on every flush.
type outputStream struct {
	s      *shims
	name   string
	buf    bytes.Buffer
	closed bool
}

// Write takes a byte value, a string or an array of byte values.
func (o *outputStream) Write(v goja.Value) error {
	if o.closed {
		return errClosed
	}
	switch x := v.Export().(type) {
	case int64:
		o.buf.WriteByte(byte(x))
	case float64:
		o.buf.WriteByte(byte(int64(x)))
	case string:
		o.buf.WriteString(x)
	case []any:
		for _, e := range x {
			switch n := e.(type) {
			case int64:
				o.buf.WriteByte(byte(n))
			case float64:
				o.buf.WriteByte(byte(int64(n)))
			default:
				return fmt.Errorf("java.io.FileOutputStream: cannot write %T", e)
			}
		}
	default:
		return fmt.Errorf("java.io.FileOutputStream: cannot write %T", x)
	}
	return nil
}

func (o *outputStream) Flush() error {
	if o.closed {
		return errClosed
	}
	fsys, err := o.s.b.Fs()
	if err != nil {
		return err
	}
	return fsys.WriteFile(o.name, o.buf.Bytes(), 0o644)
}

func (o *outputStream) Close() error {
	if o.closed {
		return nil
	}
	err := o.Flush()
	o.closed = true
	return err
}
