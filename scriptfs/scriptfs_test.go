package scriptfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/klauspost/compress/zip"
	"github.com/ngicks/go-devrun/archivefs"
	"github.com/ngicks/go-devrun/fsutil/testhelper"
	"github.com/ngicks/go-devrun/overlay"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"gotest.tools/v3/assert"
)

func prepare(t *testing.T) (afero.Fs, *overlay.Fs) {
	t.Helper()
	host := afero.NewMemMapFs()
	testhelper.MustExecuteLines(host, "/web",
		"index.html: hello",
		"out/",
	)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("a.js")
	assert.NilError(t, err)
	_, err = io.WriteString(fw, "a")
	assert.NilError(t, err)
	assert.NilError(t, w.Close())
	a, err := archivefs.NewZip(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.NilError(t, err)

	lib, err := overlay.NewArchiveLayer("lib", a)
	assert.NilError(t, err)
	web, err := overlay.NewOsDirLayer(host, "", "/web")
	assert.NilError(t, err)
	return host, overlay.New(lib, web)
}

func run(t *testing.T, fsys *overlay.Fs, src string) goja.Value {
	t.Helper()
	logger, _ := test.NewNullLogger()
	v, err := Run(context.Background(), Options{Fs: fsys, Source: src, Logger: logger})
	assert.NilError(t, err)
	return v
}

func TestRun_Read(t *testing.T) {
	_, fsys := prepare(t)
	v := run(t, fsys, `
var f = new java.io.File("/index.html");
var s = new java.io.FileInputStream(f);
var out = "";
var b;
while ((b = s.read()) !== -1) {
	out += String.fromCharCode(b);
}
s.close();
[f.exists(), f.isFile(), f.isDirectory(), f.getName(), f.length(), out, new java.io.File("/nope").exists()]
`)
	assert.DeepEqual(t, []any{true, true, false, "index.html", int64(5), "hello", false}, v.Export())
}

func TestRun_ListThroughPackages(t *testing.T) {
	_, fsys := prepare(t)
	v := run(t, fsys, `
var root = new Packages.java.io.File("/");
var lib = new java.io.File(root, "lib");
[
	root.list().join(","),
	lib.isDirectory(),
	lib.listFiles()[0].getAbsolutePath(),
	new java.io.FileInputStream("lib/a.js").readText(),
	new java.io.File("/missing").list() === null,
	new java.io.File("/lib/a.js").getParent(),
]
`)
	assert.DeepEqual(t, []any{"index.html,lib,out", true, "/lib/a.js", "a", true, "/lib"}, v.Export())
}

func TestRun_Write(t *testing.T) {
	host, fsys := prepare(t)
	run(t, fsys, `
var o = new java.io.FileOutputStream(new java.io.File("/out", "x.txt"));
o.write("abc");
o.write(100);
o.close();
var a = new java.io.FileOutputStream("/out/x.txt", true);
a.write([101]);
a.close();
new java.io.File("/out/sub/deeper").mkdirs();
`)
	b, err := fsys.ReadFile("out/x.txt")
	assert.NilError(t, err)
	assert.Equal(t, "abcde", string(b))

	b, err = afero.ReadFile(host, "/web/out/x.txt")
	assert.NilError(t, err)
	assert.Equal(t, "abcde", string(b))

	isDir, err := afero.IsDir(host, "/web/out/sub/deeper")
	assert.NilError(t, err)
	assert.Assert(t, isDir)
}

func TestRun_ArchiveIsReadOnly(t *testing.T) {
	_, fsys := prepare(t)
	logger, _ := test.NewNullLogger()
	_, err := Run(context.Background(), Options{
		Fs:     fsys,
		Source: `new java.io.FileOutputStream("/lib/b.js")`,
		Logger: logger,
	})
	var serr *ScriptError
	assert.Assert(t, errors.As(err, &serr))
	assert.ErrorContains(t, err, "read-only")

	v := run(t, fsys, `new java.io.File("/lib/a.js")["delete"]()`)
	assert.Equal(t, false, v.Export())
}

func TestRun_Print(t *testing.T) {
	_, fsys := prepare(t)
	logger, hook := test.NewNullLogger()
	_, err := Run(context.Background(), Options{
		Fs:     fsys,
		Name:   "p.js",
		Source: `print("one\r\ntwo", 3)`,
		Logger: logger,
	})
	assert.NilError(t, err)

	entries := hook.AllEntries()
	assert.Equal(t, 2, len(entries))
	assert.Equal(t, "one", entries[0].Message)
	assert.Equal(t, "two 3", entries[1].Message)
	assert.Equal(t, "p.js", entries[1].Data["script"])
}

func TestOptimize_Arguments(t *testing.T) {
	_, fsys := prepare(t)
	logger, _ := test.NewNullLogger()
	v, err := Optimize(context.Background(), fsys, `arguments.length + " " + arguments.join(" ")`, "conf/app.build.js", logger)
	assert.NilError(t, err)
	assert.Equal(t, "2 -o /build/app.build.js", v.String())
}

func TestRun_BindingRemovedAfterRun(t *testing.T) {
	_, fsys := prepare(t)
	v := run(t, fsys, `(function () { return new java.io.File("/index.html").exists(); })`)

	fn, ok := goja.AssertFunction(v)
	assert.Assert(t, ok)
	_, err := fn(goja.Undefined())
	assert.ErrorContains(t, err, "no overlay installed")

	// the overlay itself is free to be installed elsewhere.
	var b overlay.Binding
	remove, err := fsys.InstallIn(&b)
	assert.NilError(t, err)
	remove()
}

func TestRun_Errors(t *testing.T) {
	_, fsys := prepare(t)
	logger, _ := test.NewNullLogger()

	_, err := Run(context.Background(), Options{Fs: fsys, Source: `throw new Error("boom")`, Logger: logger})
	var serr *ScriptError
	assert.Assert(t, errors.As(err, &serr))
	assert.Equal(t, "Error: boom", serr.Message)
	assert.Equal(t, "script.js", serr.Script)

	_, err = Run(context.Background(), Options{Fs: fsys, Source: `var = ;`, Logger: logger})
	assert.Assert(t, errors.As(err, &serr))

	_, err = Run(context.Background(), Options{Source: `1`})
	assert.ErrorContains(t, err, "nil Fs")
}

func TestRun_Cancel(t *testing.T) {
	_, fsys := prepare(t)
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, Options{Fs: fsys, Source: `for (;;) {}`, Logger: logger})
	assert.Assert(t, errors.Is(err, context.DeadlineExceeded))
}
