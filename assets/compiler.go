package assets

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path"
	"slices"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Compiler turns one stylesheet source into CSS.
type Compiler interface {
	Name() string
	// MapName maps a source path to the path of its output.
	MapName(name string) string
	// Compile compiles name read from src. src is the whole compile tree,
	// so that imports can be looked up relative to name.
	Compile(ctx context.Context, src fs.FS, name string) ([]byte, error)
}

// CompileError is a compiler failure for a single source.
type CompileError struct {
	Compiler string
	Path     string
	Err      error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: compile %s: %v", e.Compiler, e.Path, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// MapExt replaces the extension of name with to when it is one of from.
// Other names get to appended.
func MapExt(name string, from []string, to string) string {
	ext := path.Ext(name)
	if slices.Contains(from, ext) {
		return strings.TrimSuffix(name, ext) + to
	}
	return name + to
}

var _ Compiler = (*ExecCompiler)(nil)

// ExecCompiler pipes the source through an external command and takes its stdout as the output.
type ExecCompiler struct {
	name    string
	exts    []string
	outExt  string
	command []string
	// extArgs are appended to the command for sources with the keyed extension.
	extArgs map[string][]string
	// Encoding of the sources. Sources are handed to the command as UTF-8.
	Encoding string
}

func NewExecCompiler(name string, exts []string, outExt string, command ...string) *ExecCompiler {
	return &ExecCompiler{name: name, exts: exts, outExt: outExt, command: command}
}

// Less compiles with lessc reading stdin unless command overrides it.
func Less(command ...string) *ExecCompiler {
	if len(command) == 0 {
		command = []string{"lessc", "-"}
	}
	return NewExecCompiler("less", []string{".less"}, ".css", command...)
}

// Sass compiles with dart-sass reading stdin unless command overrides it.
// Indented syntax is requested for .sass sources.
func Sass(command ...string) *ExecCompiler {
	if len(command) == 0 {
		command = []string{"sass", "--stdin"}
	}
	c := NewExecCompiler("sass", []string{".sass", ".scss"}, ".css", command...)
	c.extArgs = map[string][]string{".sass": {"--indented"}}
	return c
}

func (c *ExecCompiler) Name() string {
	return c.name
}

func (c *ExecCompiler) MapName(name string) string {
	return MapExt(name, c.exts, c.outExt)
}

func (c *ExecCompiler) Compile(ctx context.Context, src fs.FS, name string) ([]byte, error) {
	if len(c.command) == 0 {
		return nil, fmt.Errorf("%s: no command configured", c.name)
	}
	b, err := fs.ReadFile(src, name)
	if err != nil {
		return nil, err
	}
	b, err = toUTF8(b, c.Encoding)
	if err != nil {
		return nil, err
	}

	args := append(slices.Clone(c.command[1:]), c.extArgs[path.Ext(name)]...)
	cmd := exec.CommandContext(ctx, c.command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(b)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

func toUTF8(b []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return b, nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", encoding, err)
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), b)
	return out, err
}
