package rebuild

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"slices"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/ngicks/go-devrun/assets"
	"github.com/ngicks/go-devrun/overlay"
	"github.com/ngicks/go-devrun/project"
	"gotest.tools/v3/assert"
)

type fakeLoader struct {
	plan  []project.Module
	err   error
	loads int
}

func (l *fakeLoader) Load(ctx context.Context) ([]project.Module, error) {
	l.loads++
	if l.err != nil {
		return nil, l.err
	}
	return slices.Clone(l.plan), nil
}

type fakeResolver struct {
	artifacts map[string][]project.Artifact
	err       error
}

func (r *fakeResolver) Resolve(ctx context.Context, m project.Module, scope project.Scope) ([]project.Artifact, error) {
	if r.err != nil {
		return nil, r.err
	}
	return slices.Clone(r.artifacts[m.ID()]), nil
}

type fakeFilter struct {
	invoked   []string
	filtered  []project.FilterRequest
	invokeErr error
}

func (f *fakeFilter) Filter(ctx context.Context, req project.FilterRequest) error {
	f.filtered = append(f.filtered, req)
	return nil
}

func (f *fakeFilter) Invoke(ctx context.Context, descriptor string, goal string) error {
	f.invoked = append(f.invoked, descriptor+" "+goal)
	return f.invokeErr
}

type fakePaths map[string]project.OverlayPaths

func (p fakePaths) ModuleOverlayPaths(moduleID string) (project.OverlayPaths, bool) {
	paths, ok := p[moduleID]
	return paths, ok
}

type fakeContext struct {
	mu        sync.Mutex
	calls     []string
	base      *overlay.Fs
	classpath []string
	stopErr   error
	startErr  error
}

func (c *fakeContext) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeContext) SetBaseResource(fsys *overlay.Fs) {
	c.record("base")
	c.base = fsys
}

func (c *fakeContext) SetClassLoader(entries []string) {
	c.record("classloader")
	c.classpath = entries
}

func (c *fakeContext) Start(ctx context.Context) error {
	c.record("start")
	return c.startErr
}

func (c *fakeContext) Stop(ctx context.Context) error {
	c.record("stop")
	return c.stopErr
}

func (c *fakeContext) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

func (c *fakeContext) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

type fakeCompiler struct {
	fail  error
	calls int
}

func (c *fakeCompiler) Name() string { return "fake" }

func (c *fakeCompiler) MapName(name string) string {
	return assets.MapExt(name, []string{".less"}, ".css")
}

func (c *fakeCompiler) Compile(ctx context.Context, src fs.FS, name string) ([]byte, error) {
	c.calls++
	if c.fail != nil {
		return nil, c.fail
	}
	b, err := fs.ReadFile(src, name)
	if err != nil {
		return nil, err
	}
	return bytes.ToUpper(b), nil
}

var errBroken = errors.New("broken")

func makeZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		fw, err := w.Create(name)
		assert.NilError(t, err)
		_, err = io.WriteString(fw, content)
		assert.NilError(t, err)
	}
	assert.NilError(t, w.Close())
	return buf.Bytes()
}
