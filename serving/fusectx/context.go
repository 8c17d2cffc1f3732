// Package fusectx exports the current overlay as a read-only FUSE mount.
//
// Every node resolves its path against the overlay installed at the time of the call,
// so swapping the base resource is visible to the next lookup.
package fusectx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"github.com/ngicks/go-devrun/fsutil"
	"github.com/ngicks/go-devrun/overlay"
	"github.com/ngicks/go-devrun/rebuild"
	"github.com/sirupsen/logrus"
)

var (
	_ rebuild.ServingContext = (*Context)(nil)
	_ fusefs.FS              = (*Context)(nil)
)

type Context struct {
	mountpoint string
	logger     logrus.FieldLogger

	base      atomic.Pointer[overlay.Fs]
	classpath atomic.Pointer[[]string]

	mu     sync.Mutex
	conn   *fuse.Conn
	served chan struct{}
}

func New(mountpoint string, logger logrus.FieldLogger) *Context {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Context{mountpoint: mountpoint, logger: logger.WithField("mountpoint", mountpoint)}
}

func (c *Context) SetBaseResource(fsys *overlay.Fs) {
	c.base.Store(fsys)
}

// SetClassLoader only records entries. A mount has no class loader to reload.
func (c *Context) SetClassLoader(entries []string) {
	cloned := slices.Clone(entries)
	c.classpath.Store(&cloned)
}

func (c *Context) Classpath() []string {
	p := c.classpath.Load()
	if p == nil {
		return nil
	}
	return slices.Clone(*p)
}

// Start mounts and serves in the background.
func (c *Context) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return errors.New("fusectx: already mounted")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := fuse.Mount(
		c.mountpoint,
		fuse.FSName("devrun"),
		fuse.Subtype("devrun"),
		fuse.ReadOnly(),
	)
	if err != nil {
		return fmt.Errorf("fusectx: mount %s: %w", c.mountpoint, err)
	}
	c.conn = conn
	c.served = make(chan struct{})

	served := c.served
	go func() {
		defer close(served)
		if err := fusefs.Serve(conn, c); err != nil {
			c.logger.WithError(err).Error("fuse server failed")
		}
	}()
	c.logger.Info("filesystem mounted")
	return nil
}

// Stop unmounts and waits for the server to drain, or for ctx.
func (c *Context) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := fuse.Unmount(c.mountpoint)
	if err == nil {
		select {
		case <-c.served:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	c.conn = nil
	c.logger.Info("filesystem unmounted")
	return err
}

func (c *Context) Root() (fusefs.Node, error) {
	return &node{c: c, name: ""}, nil
}

var (
	_ fusefs.Node               = (*node)(nil)
	_ fusefs.NodeStringLookuper = (*node)(nil)
	_ fusefs.HandleReadDirAller = (*node)(nil)
	_ fusefs.NodeOpener         = (*node)(nil)
	_ fusefs.HandleReadAller    = (*node)(nil)
)

// node is a virtual path. Whether it is a file or a directory is decided per call.
type node struct {
	c    *Context
	name string
}

func (n *node) stat() (*overlay.Fs, fs.FileInfo, error) {
	fsys := n.c.base.Load()
	if fsys == nil {
		if n.name == "" {
			return nil, nil, nil
		}
		return nil, nil, fuse.ENOENT
	}
	info, err := fsys.Stat(n.name)
	if err != nil {
		return nil, nil, toErrno(err)
	}
	return fsys, info, nil
}

func (n *node) Attr(_ context.Context, a *fuse.Attr) error {
	_, info, err := n.stat()
	if err != nil {
		return err
	}
	if info == nil || info.IsDir() {
		a.Mode = fs.ModeDir | 0o555
		if info != nil {
			a.Mtime = info.ModTime()
		}
		return nil
	}
	a.Mode = 0o444
	a.Size = uint64(info.Size())
	a.Mtime = info.ModTime()
	a.Blocks = (a.Size + 511) / 512
	return nil
}

func (n *node) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	child := path.Join(n.name, name)
	fsys := n.c.base.Load()
	if fsys == nil {
		return nil, fuse.ENOENT
	}
	if _, err := fsys.Stat(child); err != nil {
		return nil, toErrno(err)
	}
	return &node{c: n.c, name: child}, nil
}

func (n *node) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	fsys, info, err := n.stat()
	if err != nil {
		return nil, err
	}
	if fsys == nil {
		return nil, nil
	}
	if !info.IsDir() {
		return nil, fuse.Errno(syscall.ENOTDIR)
	}
	dirents, err := fsys.ReadDir(n.name)
	if err != nil {
		return nil, toErrno(err)
	}
	out := make([]fuse.Dirent, len(dirents))
	for i, d := range dirents {
		out[i] = fuse.Dirent{Name: d.Name(), Type: fuse.DT_File}
		if d.IsDir() {
			out[i].Type = fuse.DT_Dir
		}
	}
	return out, nil
}

func (n *node) Open(_ context.Context, req *fuse.OpenRequest, _ *fuse.OpenResponse) (fusefs.Handle, error) {
	if !req.Flags.IsReadOnly() {
		return nil, fuse.Errno(syscall.EROFS)
	}
	return n, nil
}

// ReadAll reads the whole file from the current overlay.
func (n *node) ReadAll(_ context.Context) ([]byte, error) {
	fsys := n.c.base.Load()
	if fsys == nil {
		return nil, fuse.ENOENT
	}
	b, err := fsys.ReadFile(n.name)
	if err != nil {
		return nil, toErrno(err)
	}
	return b, nil
}

func toErrno(err error) error {
	switch {
	case fsutil.IsMissing(err):
		return fuse.ENOENT
	case errors.Is(err, overlay.ErrReadOnlyLayer):
		return fuse.Errno(syscall.EROFS)
	case errors.Is(err, fs.ErrPermission):
		return fuse.EPERM
	}
	return fuse.EIO
}
