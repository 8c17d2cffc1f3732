// Package assets compiles stylesheet sources found in the served tree
// and exposes each output as its own generated overlay layer.
package assets

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/ngicks/go-devrun/fsutil"
	"github.com/ngicks/go-devrun/fsutil/pathutil"
	"github.com/ngicks/go-devrun/overlay"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DefaultScanRoot is where the webapp source tree is mounted in the compile tree.
const DefaultScanRoot = "virtual"

// Pipeline is one compiler together with the sources it handles.
type Pipeline struct {
	Compiler Compiler
	Includes []string
	Excludes []string
	// FailOnError makes a compile failure an error for the reader and aborts [Builder.Warm].
	// Otherwise the failure is logged and the previous output, if any, is served.
	FailOnError bool
	// ForceIfOlder recompiles on first read even if the persisted output is newer than the source.
	ForceIfOlder bool
	Skip         bool
}

// LessPipeline returns the default LESS pipeline.
func LessPipeline(c Compiler) Pipeline {
	return Pipeline{
		Compiler:    c,
		Includes:    []string{"**/*.less"},
		FailOnError: true,
	}
}

// SassPipeline returns the default SASS pipeline. Partials are not compiled on their own.
func SassPipeline(c Compiler) Pipeline {
	return Pipeline{
		Compiler:    c,
		Includes:    []string{"**/*.sass", "**/*.scss"},
		Excludes:    []string{"**/_*.sass", "**/_*.scss"},
		FailOnError: true,
	}
}

type Builder struct {
	host      afero.Fs
	outputDir string
	scanRoot  string
	logger    logrus.FieldLogger
}

// NewBuilder returns a Builder persisting outputs under outputDir of host.
// scanRoot defaults to [DefaultScanRoot].
func NewBuilder(host afero.Fs, outputDir, scanRoot string, logger logrus.FieldLogger) *Builder {
	if scanRoot == "" {
		scanRoot = DefaultScanRoot
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Builder{host: host, outputDir: outputDir, scanRoot: scanRoot, logger: logger}
}

// Build scans the compile tree src below the scan root and returns one generated layer
// per source matched by a pipeline. Each layer is mounted at the directory of the output,
// relative to the scan root, and holds only the output file.
// Nothing is compiled here.
func (b *Builder) Build(ctx context.Context, src *overlay.Fs, pipelines ...Pipeline) ([]overlay.Layer, error) {
	root, err := pathutil.Clean(b.scanRoot)
	if err != nil {
		return nil, err
	}
	iofs := src.IoFS()

	var layers []overlay.Layer
	for _, p := range pipelines {
		if p.Skip || p.Compiler == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		names, err := Scan(iofs, pathutil.FsName(root), p.Includes, p.Excludes)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", p.Compiler.Name(), err)
		}
		for _, name := range names {
			out := p.Compiler.MapName(name)
			mount := path.Dir(out)
			if mount == "." {
				mount = ""
			}
			g := &Generated{
				compiler:     p.Compiler,
				src:          iofs,
				srcName:      pathutil.Join(root, name),
				outName:      path.Base(out),
				outPath:      filepath.Join(b.outputDir, filepath.FromSlash(out)),
				host:         b.host,
				logger:       b.logger.WithField("compiler", p.Compiler.Name()),
				failOnError:  p.FailOnError,
				forceIfOlder: p.ForceIfOlder,
			}
			l, err := overlay.NewGeneratedLayer(mount, g)
			if err != nil {
				return nil, err
			}
			b.logger.WithField("source", g.srcName).WithField("mount", "/"+mount).Debug("generated layer")
			layers = append(layers, l)
		}
	}
	return layers, nil
}

// Warm compiles every generated layer of a fail-on-error pipeline.
// The first compile failure is returned; tolerant pipelines are left lazy.
func Warm(ctx context.Context, layers []overlay.Layer) error {
	for _, l := range layers {
		g, ok := l.Source().(*Generated)
		if !ok || !g.FailOnError() {
			continue
		}
		if err := g.Warm(ctx); err != nil {
			var cerr *CompileError
			if errors.As(err, &cerr) {
				return cerr
			}
			if fsutil.IsMissing(err) {
				continue
			}
			return err
		}
	}
	return nil
}
