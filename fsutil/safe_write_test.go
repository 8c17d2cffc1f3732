package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"gotest.tools/v3/assert"
)

func TestSafeWrite(t *testing.T) {
	fsys := afero.NewMemMapFs()

	err := SafeWrite[afero.File](fsys, "/out/css/app.css", strings.NewReader("body{}"), 0o644)
	assert.NilError(t, err)

	b, err := afero.ReadFile(fsys, "/out/css/app.css")
	assert.NilError(t, err)
	assert.Equal(t, "body{}", string(b))

	err = SafeWrite[afero.File](fsys, "/out/css/app.css", strings.NewReader("p{}"), 0o644)
	assert.NilError(t, err)
	b, err = afero.ReadFile(fsys, "/out/css/app.css")
	assert.NilError(t, err)
	assert.Equal(t, "p{}", string(b))

	assertNoTemp(t, fsys, "/out/css")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("boom")
}

func TestSafeWrite_ReaderError(t *testing.T) {
	fsys := afero.NewMemMapFs()
	assert.NilError(t, afero.WriteFile(fsys, "/out/a.css", []byte("previous"), 0o644))

	err := SafeWrite[afero.File](fsys, "/out/a.css", io.MultiReader(strings.NewReader("partial"), failingReader{}), 0o644)
	assert.ErrorContains(t, err, "boom")

	b, err := afero.ReadFile(fsys, "/out/a.css")
	assert.NilError(t, err)
	assert.Equal(t, "previous", string(b))

	assertNoTemp(t, fsys, "/out")
}

func assertNoTemp(t *testing.T, fsys afero.Fs, dir string) {
	t.Helper()
	dirents, err := afero.ReadDir(fsys, dir)
	assert.NilError(t, err)
	for _, d := range dirents {
		assert.Assert(t, !strings.HasSuffix(d.Name(), ".tmp"), "temporary file left behind: %s", d.Name())
	}
}

func TestOpenFileRandom_BadPattern(t *testing.T) {
	_, err := OpenFileRandom[afero.Fs, afero.File](afero.NewMemMapFs(), "/", "a/*.tmp", fs.ModePerm)
	assert.Assert(t, errors.Is(err, ErrBadPattern))
}
