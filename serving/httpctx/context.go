// Package httpctx serves the current overlay over HTTP.
package httpctx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ngicks/go-devrun/overlay"
	"github.com/ngicks/go-devrun/rebuild"
	"github.com/sirupsen/logrus"
)

var _ rebuild.ServingContext = (*Context)(nil)

// Context is a restartable HTTP server over an atomically replaced overlay.
// Requests arriving while it is stopped, or before any overlay is set, get 503.
type Context struct {
	addr   string
	logger logrus.FieldLogger

	base      atomic.Pointer[overlay.Fs]
	classpath atomic.Pointer[[]string]
	running   atomic.Bool

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
	served chan struct{}
}

func New(addr string, logger logrus.FieldLogger) *Context {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Context{addr: addr, logger: logger}
}

func (c *Context) SetBaseResource(fsys *overlay.Fs) {
	c.base.Store(fsys)
}

func (c *Context) SetClassLoader(entries []string) {
	cloned := slices.Clone(entries)
	c.classpath.Store(&cloned)
}

// Classpath returns the entries last given to SetClassLoader.
func (c *Context) Classpath() []string {
	p := c.classpath.Load()
	if p == nil {
		return nil
	}
	return slices.Clone(*p)
}

// Addr returns the listen address. Once started it is the bound one.
func (c *Context) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln != nil {
		return c.ln.Addr().String()
	}
	return c.addr
}

// Start binds the listener and serves in the background.
// Once bound, restarts rebind the same address, even when the configured port was 0.
func (c *Context) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server != nil {
		return errors.New("httpctx: already started")
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("httpctx: listen on %s: %w", c.addr, err)
	}
	c.ln = ln
	c.addr = ln.Addr().String()
	c.server = &http.Server{Handler: c}
	c.served = make(chan struct{})
	c.running.Store(true)

	server, served := c.server, c.served
	go func() {
		defer close(served)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.WithError(err).Error("http serving context failed")
		}
	}()
	c.logger.WithField("addr", c.addr).Info("http serving context started")
	return nil
}

// Stop gracefully shuts the server down. In-flight requests finish on the tree they started with.
func (c *Context) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running.Store(false)
	if c.server == nil {
		return nil
	}
	err := c.server.Shutdown(ctx)
	select {
	case <-c.served:
	case <-ctx.Done():
	}
	c.server = nil
	c.ln = nil
	c.logger.Info("http serving context stopped")
	return err
}

func (c *Context) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fsys := c.base.Load()
	if !c.running.Load() || fsys == nil {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "serving context is not running", http.StatusServiceUnavailable)
		return
	}
	http.FileServerFS(fsys.IoFS()).ServeHTTP(w, r)
}
