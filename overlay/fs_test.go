package overlay

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/zip"
	"github.com/ngicks/go-devrun/archivefs"
	"github.com/ngicks/go-devrun/fsutil/testhelper"
	"github.com/spf13/afero"
	"gotest.tools/v3/assert"
)

func writeZip(t *testing.T, host afero.Fs, name string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for n, content := range entries {
		fw, err := w.Create(n)
		assert.NilError(t, err)
		_, err = io.WriteString(fw, content)
		assert.NilError(t, err)
	}
	assert.NilError(t, w.Close())
	assert.NilError(t, afero.WriteFile(host, name, buf.Bytes(), 0o644))
}

func mustLayer(t *testing.T) func(l Layer, err error) Layer {
	return func(l Layer, err error) Layer {
		t.Helper()
		assert.NilError(t, err)
		return l
	}
}

// prepareFs returns
//
//	[0] archive  @ lib     jquery.js, override.js
//	[1] archive  @ vendor  x.js
//	[2] dir /war @ /       index.html, lib/override.js, WEB-INF/web.xml
func prepareFs(t *testing.T) (*Fs, afero.Fs) {
	t.Helper()
	host := afero.NewMemMapFs()
	testhelper.MustExecuteLines(host, "/war",
		"index.html: war",
		"lib/override.js: war-override",
		"WEB-INF/web.xml: <web-app/>",
	)
	writeZip(t, host, "/repo/bundle.jszip", map[string]string{
		"jquery.js":   "jquery",
		"override.js": "archive-override",
	})
	writeZip(t, host, "/repo/vendor.jszip", map[string]string{
		"x.js": "x",
	})

	must := mustLayer(t)
	bundle, err := archivefs.Open(host, "/repo/bundle.jszip")
	assert.NilError(t, err)
	vendor, err := archivefs.Open(host, "/repo/vendor.jszip")
	assert.NilError(t, err)

	fsys := New(
		must(NewArchiveLayer("/lib/", bundle)),
		must(NewArchiveLayer("vendor", vendor)),
		must(NewOsDirLayer(host, "", "/war")),
	)
	t.Cleanup(func() { _ = fsys.Close() })
	return fsys, host
}

func TestFs_Resolve(t *testing.T) {
	fsys, _ := prepareFs(t)

	res, err := fsys.Resolve("/lib/override.js")
	assert.NilError(t, err)
	assert.Equal(t, 2, res.Index)
	assert.Equal(t, KindDirectory, res.Layer.Kind())
	assert.Equal(t, "/war/lib/override.js", res.Location)

	res, err = fsys.Resolve("lib/jquery.js")
	assert.NilError(t, err)
	assert.Equal(t, 0, res.Index)
	assert.Equal(t, KindArchive, res.Layer.Kind())
	assert.Equal(t, "/repo/bundle.jszip!/jquery.js", res.Location)

	b, err := fsys.ReadFile("lib/override.js")
	assert.NilError(t, err)
	assert.Equal(t, "war-override", string(b))

	b, err = fsys.ReadFile("lib/jquery.js")
	assert.NilError(t, err)
	assert.Equal(t, "jquery", string(b))

	_, err = fsys.Resolve("lib/nope.js")
	assert.Assert(t, errors.Is(err, fs.ErrNotExist))

	// resolution is idempotent.
	r1, err := fsys.Resolve("vendor/x.js")
	assert.NilError(t, err)
	r2, err := fsys.Resolve("vendor/x.js")
	assert.NilError(t, err)
	assert.Equal(t, r1.Index, r2.Index)
	assert.Equal(t, r1.Location, r2.Location)
}

func TestFs_List(t *testing.T) {
	fsys, _ := prepareFs(t)

	names, err := fsys.List("lib")
	assert.NilError(t, err)
	assert.DeepEqual(t, []string{"jquery.js", "override.js"}, names)

	names, err = fsys.List("/")
	assert.NilError(t, err)
	assert.DeepEqual(t, []string{"WEB-INF", "index.html", "lib", "vendor"}, names)

	_, err = fsys.List("index.html")
	assert.Assert(t, err != nil)

	_, err = fsys.List("missing")
	assert.Assert(t, errors.Is(err, fs.ErrNotExist))
}

func TestFs_Write(t *testing.T) {
	fsys, host := prepareFs(t)

	assert.NilError(t, fsys.WriteFile("js/../new.txt", []byte("new"), 0o644))
	res, err := fsys.Resolve("new.txt")
	assert.NilError(t, err)
	assert.Equal(t, KindDirectory, res.Layer.Kind())
	b, err := afero.ReadFile(host, "/war/new.txt")
	assert.NilError(t, err)
	assert.Equal(t, "new", string(b))

	// war has lib/, so the write lands there and shadows the archive.
	assert.NilError(t, fsys.WriteFile("lib/jquery.js", []byte("patched"), 0o644))
	b, err = fsys.ReadFile("lib/jquery.js")
	assert.NilError(t, err)
	assert.Equal(t, "patched", string(b))

	err = fsys.WriteFile("vendor/x.js", []byte("y"), 0o644)
	assert.Assert(t, errors.Is(err, ErrReadOnlyLayer), "%v", err)
	assert.Assert(t, errors.Is(err, fs.ErrPermission))

	err = fsys.Remove("vendor/x.js")
	assert.Assert(t, errors.Is(err, ErrReadOnlyLayer))

	assert.NilError(t, fsys.MkdirAll("build/out", fs.ModePerm))
	info, err := fsys.Stat("build/out")
	assert.NilError(t, err)
	assert.Assert(t, info.IsDir())

	assert.NilError(t, fsys.Remove("lib/jquery.js"))
	b, err = fsys.ReadFile("lib/jquery.js")
	assert.NilError(t, err)
	assert.Equal(t, "jquery", string(b))
}

func TestFs_WriteNoLayer(t *testing.T) {
	host := afero.NewMemMapFs()
	writeZip(t, host, "/a.zip", map[string]string{"a.txt": "a"})
	a, err := archivefs.Open(host, "/a.zip")
	assert.NilError(t, err)
	fsys := New(mustLayer(t)(NewArchiveLayer("a", a)))

	err = fsys.WriteFile("b/c.txt", nil, 0o644)
	assert.Assert(t, errors.Is(err, fs.ErrNotExist))
	err = fsys.WriteFile("a/c.txt", nil, 0o644)
	assert.Assert(t, errors.Is(err, ErrReadOnlyLayer))
	err = fsys.WriteFile("/", nil, 0o644)
	assert.Assert(t, err != nil)
}

func TestFs_SynthesizedDirs(t *testing.T) {
	host := afero.NewMemMapFs()
	testhelper.MustExecuteLines(host, "/mod", "main.js: main")
	fsys := New(mustLayer(t)(NewOsDirLayer(host, "a/b/c", "/mod")))

	info, err := fsys.Stat("a")
	assert.NilError(t, err)
	assert.Assert(t, info.IsDir())

	res, err := fsys.Resolve("a/b")
	assert.NilError(t, err)
	assert.Equal(t, "", res.Location)

	names, err := fsys.List("a")
	assert.NilError(t, err)
	assert.DeepEqual(t, []string{"b"}, names)

	names, err = fsys.List("a/b/c")
	assert.NilError(t, err)
	assert.DeepEqual(t, []string{"main.js"}, names)

	_, err = fsys.Stat("a/x")
	assert.Assert(t, errors.Is(err, fs.ErrNotExist))
}

func TestFs_Empty(t *testing.T) {
	fsys := New()

	info, err := fsys.Stat("")
	assert.NilError(t, err)
	assert.Assert(t, info.IsDir())

	names, err := fsys.List("")
	assert.NilError(t, err)
	assert.Equal(t, 0, len(names))

	_, err = fsys.Resolve("x")
	assert.Assert(t, errors.Is(err, fs.ErrNotExist))

	_, err = fsys.Resolve("../x")
	assert.Assert(t, errors.Is(err, fs.ErrInvalid))
}

func TestFs_IoFS(t *testing.T) {
	fsys, _ := prepareFs(t)
	assert.NilError(t, fstest.TestFS(
		fsys.IoFS(),
		"index.html",
		"lib/jquery.js",
		"lib/override.js",
		"vendor/x.js",
		"WEB-INF/web.xml",
	))
}

func TestFs_EscapingPaths(t *testing.T) {
	fsys, host := prepareFs(t)

	for _, name := range []string{"../index.html", "/../index.html", "lib/../../x"} {
		_, err := fsys.Resolve(name)
		assert.Assert(t, errors.Is(err, fs.ErrInvalid), "name = %q", name)
		_, err = fsys.Open(name)
		assert.Assert(t, errors.Is(err, fs.ErrInvalid), "name = %q", name)
	}
	err := fsys.WriteFile("../escaped.txt", []byte("x"), 0o644)
	assert.Assert(t, errors.Is(err, fs.ErrInvalid))
	ok, _ := afero.Exists(host, "/war/escaped.txt")
	assert.Assert(t, !ok)

	_, err = NewOsDirLayer(host, "../up", "/src")
	assert.Assert(t, errors.Is(err, fs.ErrInvalid))
}

func TestFs_IoFSRejectsBackslash(t *testing.T) {
	fsys, _ := prepareFs(t)
	iofs := fsys.IoFS()

	_, err := iofs.Open(`lib\jquery.js`)
	assert.Assert(t, errors.Is(err, fs.ErrInvalid))
	_, err = fs.Stat(iofs, `lib\jquery.js`)
	assert.Assert(t, errors.Is(err, fs.ErrInvalid))

	// the lenient API still accepts it.
	b, err := fsys.ReadFile(`lib\jquery.js`)
	assert.NilError(t, err)
	assert.Equal(t, "jquery", string(b))
}

func TestFs_ShortReadAt(t *testing.T) {
	fsys, _ := prepareFs(t)
	f, err := fsys.Open("index.html")
	assert.NilError(t, err)
	defer f.Close()

	buf := make([]byte, 8)
	n, err := f.(io.ReaderAt).ReadAt(buf, 0)
	assert.Equal(t, 3, n)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "war", string(buf[:n]))
}

func TestLayer_Descriptor(t *testing.T) {
	host := afero.NewMemMapFs()
	must := mustLayer(t)
	l1 := must(NewOsDirLayer(host, "/lib/", "/src"))
	l2 := must(NewOsDirLayer(host, "lib", "/src"))
	l3 := must(NewOsDirLayer(host, "js", "/src"))
	assert.Equal(t, "dir:/src@/lib", l1.Descriptor())
	assert.Equal(t, l1.Descriptor(), l2.Descriptor())
	assert.Assert(t, l1.Descriptor() != l3.Descriptor())
	assert.Assert(t, l1.Writable())
}
