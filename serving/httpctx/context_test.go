package httpctx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ngicks/go-devrun/fsutil/testhelper"
	"github.com/ngicks/go-devrun/overlay"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"gotest.tools/v3/assert"
)

func tree(t *testing.T, content string) *overlay.Fs {
	t.Helper()
	host := afero.NewMemMapFs()
	testhelper.MustExecuteLines(host, "/web", "hello.txt: "+content, "lib/a.js: a")
	l, err := overlay.NewOsDirLayer(host, "", "/web")
	assert.NilError(t, err)
	return overlay.New(l)
}

func get(c *Context, target string) (int, string) {
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec.Code, rec.Body.String()
}

func TestContext_ServeHTTP(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c := New("127.0.0.1:0", logger)
	ctx := context.Background()

	code, _ := get(c, "/hello.txt")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	c.SetBaseResource(tree(t, "one"))
	code, _ = get(c, "/hello.txt")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	assert.NilError(t, c.Start(ctx))
	defer c.Stop(ctx)

	code, body := get(c, "/hello.txt")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "one", body)
	code, body = get(c, "/lib/a.js")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "a", body)
	code, _ = get(c, "/missing")
	assert.Equal(t, http.StatusNotFound, code)

	c.SetBaseResource(tree(t, "two"))
	_, body = get(c, "/hello.txt")
	assert.Equal(t, "two", body)

	assert.NilError(t, c.Stop(ctx))
	code, _ = get(c, "/hello.txt")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestContext_Restart(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c := New("127.0.0.1:0", logger)
	ctx := context.Background()
	c.SetBaseResource(tree(t, "served"))

	fetch := func() string {
		t.Helper()
		resp, err := http.Get("http://" + c.Addr() + "/hello.txt")
		assert.NilError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		assert.NilError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		return string(b)
	}

	assert.NilError(t, c.Start(ctx))
	addr := c.Addr()
	assert.Equal(t, "served", fetch())
	assert.ErrorContains(t, c.Start(ctx), "already started")

	assert.NilError(t, c.Stop(ctx))
	assert.NilError(t, c.Stop(ctx))
	assert.NilError(t, c.Start(ctx))
	defer c.Stop(ctx)
	assert.Equal(t, addr, c.Addr())
	assert.Equal(t, "served", fetch())
}

func TestContext_Classpath(t *testing.T) {
	c := New("", nil)
	assert.Assert(t, c.Classpath() == nil)

	entries := []string{"/a.jar", "/classes"}
	c.SetClassLoader(entries)
	entries[0] = "mutated"
	assert.DeepEqual(t, []string{"/a.jar", "/classes"}, c.Classpath())
}
