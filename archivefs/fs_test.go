package archivefs

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"gotest.tools/v3/assert"
)

var testMtime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func makeZip(t *testing.T, entries map[string]string, store bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		method := zip.Deflate
		if store {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: testMtime})
		assert.NilError(t, err)
		_, err = io.WriteString(fw, content)
		assert.NilError(t, err)
	}
	assert.NilError(t, w.Close())
	return buf.Bytes()
}

func makeTar(t *testing.T, entries ...[2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := tar.NewWriter(&buf)
	for _, ent := range entries {
		name, content := ent[0], ent[1]
		if name[len(name)-1] == '/' {
			assert.NilError(t, w.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: name, Mode: 0o755, ModTime: testMtime}))
			continue
		}
		assert.NilError(t, w.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			ModTime:  testMtime,
		}))
		_, err := io.WriteString(w, content)
		assert.NilError(t, err)
	}
	assert.NilError(t, w.Close())
	return buf.Bytes()
}

func TestZip(t *testing.T) {
	for _, store := range []bool{false, true} {
		b := makeZip(t, map[string]string{
			"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\n",
			"lib/jquery/jquery.js": "/* jquery */",
			"styles/app.less":      "@c: red;",
			"./dot/slash.txt":      "dot",
		}, store)

		fsys, err := NewZip(bytes.NewReader(b), int64(len(b)))
		assert.NilError(t, err)

		assert.NilError(t, fstest.TestFS(fsys,
			"META-INF/MANIFEST.MF",
			"lib/jquery/jquery.js",
			"styles/app.less",
			"dot/slash.txt",
		))

		got, err := fs.ReadFile(fsys, "lib/jquery/jquery.js")
		assert.NilError(t, err)
		assert.Equal(t, "/* jquery */", string(got))

		_, err = fsys.Stat("nonexistent")
		assert.Assert(t, errors.Is(err, fs.ErrNotExist))

		_, err = fsys.Open("lib/jquery/jquery.js/child")
		assert.Assert(t, err != nil)
	}
}

func TestTar(t *testing.T) {
	b := makeTar(t,
		[2]string{"web/", ""},
		[2]string{"web/index.html", "<html>v1</html>"},
		[2]string{"web/js/app.js", "app"},
		// duplicated entry, later one wins.
		[2]string{"web/index.html", "<html>v2</html>"},
	)

	fsys, err := NewTar(bytes.NewReader(b))
	assert.NilError(t, err)

	assert.NilError(t, fstest.TestFS(fsys, "web/index.html", "web/js/app.js"))

	got, err := fs.ReadFile(fsys, "web/index.html")
	assert.NilError(t, err)
	assert.Equal(t, "<html>v2</html>", string(got))

	dirents, err := fs.ReadDir(fsys, "web")
	assert.NilError(t, err)
	assert.Equal(t, 2, len(dirents))
	assert.Equal(t, "index.html", dirents[0].Name())
	assert.Equal(t, "js", dirents[1].Name())
	assert.Assert(t, dirents[1].IsDir())
}

func TestOpen(t *testing.T) {
	host := afero.NewMemMapFs()

	tarBody := makeTar(t, [2]string{"a/b.txt", "b"})

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write(tarBody)
	assert.NilError(t, err)
	assert.NilError(t, gw.Close())

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	assert.NilError(t, err)
	_, err = zw.Write(tarBody)
	assert.NilError(t, err)
	assert.NilError(t, zw.Close())

	files := map[string][]byte{
		"/repo/bundle.jszip": makeZip(t, map[string]string{"a/b.txt": "b"}, false),
		"/repo/plain.tar":    tarBody,
		"/repo/gz.tar.gz":    gz.Bytes(),
		"/repo/zs.tar.zst":   zs.Bytes(),
	}
	for name, b := range files {
		assert.NilError(t, afero.WriteFile(host, name, b, 0o644))
	}

	for name := range files {
		fsys, err := Open(host, name)
		assert.NilError(t, err, "name = %s", name)
		got, err := fs.ReadFile(fsys, "a/b.txt")
		assert.NilError(t, err, "name = %s", name)
		assert.Equal(t, "b", string(got), "name = %s", name)

		info, err := fsys.Stat("a")
		assert.NilError(t, err)
		assert.Assert(t, info.IsDir())

		assert.Equal(t, name, fsys.Name())
		assert.NilError(t, fsys.Close())
		assert.NilError(t, fsys.Close())
	}

	_, err = Open(host, "/repo/readme.md")
	assert.Assert(t, errors.Is(err, ErrUnknownFormat))
}

func TestDetectFormat(t *testing.T) {
	for name, want := range map[string]Format{
		"x.jar":      FormatZip,
		"x.WAR":      FormatZip,
		"x.jszip":    FormatZip,
		"x.tar":      FormatTar,
		"x.tgz":      FormatTarGzip,
		"x.tar.gz":   FormatTarGzip,
		"x.tar.zst":  FormatTarZstd,
		"x.txt":      FormatUnknown,
		"dir/target": FormatUnknown,
	} {
		assert.Equal(t, want, DetectFormat(name), "name = %s", name)
	}
}

func TestCleanEntryName(t *testing.T) {
	for in, want := range map[string]string{
		"a/b":     "a/b",
		"/a/b":    "a/b",
		"./a//b/": "a/b",
		`a\b`:     "a/b",
	} {
		got, ok := cleanEntryName(in)
		assert.Assert(t, ok, "input = %q", in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", ".", "/", "..", "../x"} {
		_, ok := cleanEntryName(in)
		assert.Assert(t, !ok, "input = %q", in)
	}
}
