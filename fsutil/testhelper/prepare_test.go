package testhelper

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"gotest.tools/v3/assert"
)

func TestParseLine(t *testing.T) {
	for _, tc := range []struct {
		line string
		want LineDirection
	}{
		{"a/b/", LineDirection{LineKind: LineKindMkdir, Path: "a/b"}},
		{"a/ 0o700", LineDirection{LineKind: LineKindMkdir, Path: "a", Permission: 0o700}},
		{"a/b.txt: foo", LineDirection{LineKind: LineKindWriteFile, Path: "a/b.txt", Content: []byte("foo")}},
		{"a.txt: 0o600 foo", LineDirection{LineKind: LineKindWriteFile, Path: "a.txt", Content: []byte("foo"), Permission: 0o600}},
		{`a.txt: "foo bar\n"`, LineDirection{LineKind: LineKindWriteFile, Path: "a.txt", Content: []byte("foo bar\n")}},
		{"a.txt@10: x", LineDirection{LineKind: LineKindWriteFile, Path: "a.txt", Content: []byte("x"), ModTime: time.Unix(10, 0)}},
		{"nonsense", LineDirection{}},
	} {
		assert.DeepEqual(t, tc.want, ParseLine(tc.line))
	}
}

func TestExecuteLines(t *testing.T) {
	fsys := afero.NewMemMapFs()
	err := ExecuteLines(fsys, "/root",
		"empty/",
		"nested/dir/file.txt: hello",
		"old.txt@100: old",
	)
	assert.NilError(t, err)

	info, err := fsys.Stat("/root/empty")
	assert.NilError(t, err)
	assert.Assert(t, info.IsDir())

	b, err := afero.ReadFile(fsys, "/root/nested/dir/file.txt")
	assert.NilError(t, err)
	assert.Equal(t, "hello", string(b))

	info, err = fsys.Stat("/root/old.txt")
	assert.NilError(t, err)
	assert.Assert(t, info.ModTime().Equal(time.Unix(100, 0)))

	assert.ErrorContains(t, ExecuteLines(fsys, "/root", "???"), "unknown line")
}
