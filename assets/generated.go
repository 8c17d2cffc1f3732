package assets

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/ngicks/go-devrun/fsutil"
	"github.com/ngicks/go-devrun/fsutil/errdef"
	"github.com/ngicks/go-devrun/overlay"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var _ overlay.WritableSource = (*Generated)(nil)

// Generated is a single compiled output exposed as a one-entry directory.
//
// The output is compiled on first read and again only after the source
// modification time moves forward. Each compiled output is also persisted
// to the host, where it is picked up on the next start if still fresh.
type Generated struct {
	compiler Compiler
	src      fs.FS
	srcName  string
	outName  string
	outPath  string
	host     afero.Fs
	logger   logrus.FieldLogger

	failOnError  bool
	forceIfOlder bool

	mu       sync.Mutex
	have     bool
	cached   []byte
	srcMtime time.Time
	modTime  time.Time
	compiles int

	// last compile failure, retried only once the source moves past failMtime.
	failErr   *CompileError
	failMtime time.Time
}

// content returns the current output, compiling when needed.
func (g *Generated) content(ctx context.Context) ([]byte, time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	srcInfo, err := fs.Stat(g.src, g.srcName)
	if err != nil {
		return nil, time.Time{}, err
	}
	srcMtime := srcInfo.ModTime()

	if g.have && !srcMtime.After(g.srcMtime) {
		return g.cached, g.modTime, nil
	}

	if g.failErr != nil && !srcMtime.After(g.failMtime) {
		return g.fallback()
	}

	if !g.have && !g.forceIfOlder {
		if b, mtime, ok := g.persisted(); ok && !mtime.Before(srcMtime) {
			g.store(b, srcMtime, mtime)
			return g.cached, g.modTime, nil
		}
	}

	g.compiles++
	b, err := g.compiler.Compile(ctx, g.src, g.srcName)
	if err != nil {
		g.failErr = &CompileError{Compiler: g.compiler.Name(), Path: g.srcName, Err: err}
		g.failMtime = srcMtime
		if g.failOnError {
			return nil, time.Time{}, g.failErr
		}
		g.logger.WithError(g.failErr).Warn("compilation failed, keeping previous output")
		if !g.have {
			if b, mtime, ok := g.persisted(); ok {
				// stale; served until the source changes again.
				g.store(b, time.Time{}, mtime)
			}
		}
		return g.fallback()
	}
	g.failErr = nil

	now := time.Now()
	if err := fsutil.SafeWrite[afero.File](g.host, g.outPath, bytes.NewReader(b), 0o644); err != nil {
		g.logger.WithError(err).WithField("path", g.outPath).Warn("failed to persist compiled output")
	} else if info, err := g.host.Stat(g.outPath); err == nil {
		now = info.ModTime()
	}
	g.store(b, srcMtime, now)
	g.logger.WithField("source", g.srcName).WithField("compiler", g.compiler.Name()).Debug("compiled")
	return g.cached, g.modTime, nil
}

func (g *Generated) store(b []byte, srcMtime, modTime time.Time) {
	g.have = true
	g.cached = b
	g.srcMtime = srcMtime
	g.modTime = modTime
}

// fallback answers reads while the last compile failure stands.
func (g *Generated) fallback() ([]byte, time.Time, error) {
	switch {
	case g.failOnError:
		return nil, time.Time{}, g.failErr
	case g.have:
		return g.cached, g.modTime, nil
	}
	return nil, time.Time{}, fs.ErrNotExist
}

func (g *Generated) persisted() ([]byte, time.Time, bool) {
	info, err := g.host.Stat(g.outPath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, time.Time{}, false
	}
	b, err := afero.ReadFile(g.host, g.outPath)
	if err != nil {
		return nil, time.Time{}, false
	}
	return b, info.ModTime(), true
}

// Compiles reports how many times the compiler was invoked.
func (g *Generated) Compiles() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.compiles
}

// FailOnError reports whether compile failures surface to readers.
func (g *Generated) FailOnError() bool {
	return g.failOnError
}

// Warm compiles the output now instead of on first read.
func (g *Generated) Warm(ctx context.Context) error {
	_, _, err := g.content(ctx)
	return err
}

func (g *Generated) info() (fs.FileInfo, error) {
	b, mtime, err := g.content(context.Background())
	if err != nil {
		return nil, err
	}
	return fileInfo{name: g.outName, size: int64(len(b)), modTime: mtime}, nil
}

func (g *Generated) Stat(name string) (fs.FileInfo, error) {
	switch name {
	case ".":
		return dirInfo{name: "."}, nil
	case g.outName:
		info, err := g.info()
		return info, fsutil.WrapPathErr("stat", name, err)
	}
	return nil, fsutil.WrapPathErr("stat", name, fs.ErrNotExist)
}

func (g *Generated) ReadDir(name string) ([]fs.DirEntry, error) {
	switch name {
	case ".":
		// a tolerant layer with nothing to serve lists nothing.
		if _, err := g.info(); err != nil && !g.failOnError {
			return []fs.DirEntry{}, nil
		}
		return []fs.DirEntry{lazyDirent{g: g}}, nil
	case g.outName:
		return nil, fsutil.WrapPathErr("readdir", name, errdef.ENOTDIR)
	}
	return nil, fsutil.WrapPathErr("readdir", name, fs.ErrNotExist)
}

func (g *Generated) Open(name string) (fs.File, error) {
	switch name {
	case ".":
		return nil, fsutil.WrapPathErr("open", name, errdef.EISDIR)
	case g.outName:
		b, mtime, err := g.content(context.Background())
		if err != nil {
			return nil, fsutil.WrapPathErr("open", name, err)
		}
		return &memFile{
			Reader: bytes.NewReader(b),
			info:   fileInfo{name: g.outName, size: int64(len(b)), modTime: mtime},
		}, nil
	}
	return nil, fsutil.WrapPathErr("open", name, fs.ErrNotExist)
}

func (g *Generated) Location(name string) string {
	if name == g.outName {
		return g.outPath
	}
	return g.compiler.Name() + ":" + g.srcName
}

// WriteFile replaces the output until the source changes again.
func (g *Generated) WriteFile(name string, data []byte, perm fs.FileMode) error {
	if name != g.outName {
		return fsutil.WrapPathErr("write", name, errdef.EROFS)
	}
	srcInfo, err := fs.Stat(g.src, g.srcName)
	if err != nil {
		return fsutil.WrapPathErr("write", name, err)
	}
	if err := fsutil.SafeWrite[afero.File](g.host, g.outPath, bytes.NewReader(data), perm); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failErr = nil
	g.store(bytes.Clone(data), srcInfo.ModTime(), time.Now())
	return nil
}

func (g *Generated) MkdirAll(name string, perm fs.FileMode) error {
	return fsutil.WrapPathErr("mkdir", name, errdef.EROFS)
}

// Remove drops the output; the next read compiles afresh.
func (g *Generated) Remove(name string) error {
	if name != g.outName {
		return fsutil.WrapPathErr("remove", name, errdef.EROFS)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.have, g.cached = false, nil
	g.failErr = nil
	err := g.host.Remove(g.outPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (g *Generated) Close() error {
	return nil
}

type lazyDirent struct {
	g *Generated
}

func (d lazyDirent) Name() string               { return d.g.outName }
func (d lazyDirent) IsDir() bool                { return false }
func (d lazyDirent) Type() fs.FileMode          { return 0 }
func (d lazyDirent) Info() (fs.FileInfo, error) { return d.g.info() }

type fileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (i fileInfo) Name() string       { return i.name }
func (i fileInfo) Size() int64        { return i.size }
func (i fileInfo) Mode() fs.FileMode  { return 0o444 }
func (i fileInfo) ModTime() time.Time { return i.modTime }
func (i fileInfo) IsDir() bool        { return false }
func (i fileInfo) Sys() any           { return nil }

type dirInfo struct {
	name string
}

func (i dirInfo) Name() string       { return i.name }
func (i dirInfo) Size() int64        { return 0 }
func (i dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (i dirInfo) ModTime() time.Time { return time.Time{} }
func (i dirInfo) IsDir() bool        { return true }
func (i dirInfo) Sys() any           { return nil }

type memFile struct {
	*bytes.Reader
	info fs.FileInfo
}

func (f *memFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *memFile) Close() error               { return nil }

var _ io.ReaderAt = (*memFile)(nil)
