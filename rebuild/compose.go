package rebuild

import (
	"context"
	"fmt"

	"github.com/ngicks/go-devrun/archivefs"
	"github.com/ngicks/go-devrun/assets"
	"github.com/ngicks/go-devrun/overlay"
	"github.com/ngicks/go-devrun/project"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// LayerSpec describes a layer before anything is opened.
// Comparing descriptors of two compositions tells whether the served tree moved.
type LayerSpec struct {
	Kind     overlay.Kind
	Mount    string
	Location string
	// Origin is the artifact key the layer comes from, or empty for the webapp source.
	Origin string
}

func (s LayerSpec) Webapp() bool {
	return s.Origin == ""
}

// Descriptor matches [overlay.Layer.Descriptor] of the opened layer.
func (s LayerSpec) Descriptor() string {
	return fmt.Sprintf("%s:%s@/%s", s.Kind, s.Location, s.Mount)
}

func (s LayerSpec) Open(host afero.Fs) (overlay.Layer, error) {
	switch s.Kind {
	case overlay.KindDirectory:
		return overlay.NewOsDirLayer(host, s.Mount, s.Location)
	case overlay.KindArchive:
		a, err := archivefs.Open(host, s.Location)
		if err != nil {
			return overlay.Layer{}, err
		}
		l, err := overlay.NewArchiveLayer(s.Mount, a)
		if err != nil {
			_ = a.Close()
		}
		return l, err
	}
	return overlay.Layer{}, fmt.Errorf("cannot open %s layer", s.Kind)
}

func Descriptors(specs []LayerSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Descriptor()
	}
	return out
}

// Composer builds the served layer list of a module.
type Composer struct {
	Host     afero.Fs
	Paths    project.OverlayPathsLookup
	Mappings []project.Mapping
	Scope    project.Scope
	// WebappSource is the host directory mounted at the root.
	WebappSource string
	// ScanRoot is where WebappSource is mounted for asset compilation.
	ScanRoot  string
	Builder   *assets.Builder
	Pipelines []assets.Pipeline
	Logger    logrus.FieldLogger
}

// Specs lists the layers of overlay artifacts and of the webapp source, lowest priority first.
//
// An overlay artifact built by a module of the plan contributes the module's live
// resources and content directories, the latter winning. Any other overlay artifact
// contributes its archive. Each is mounted where the mappings say.
// The webapp source comes last so local edits win.
func (c *Composer) Specs(plan []project.Module, artifacts []project.Artifact) ([]LayerSpec, error) {
	var specs []LayerSpec
	for _, a := range project.OverlayArtifacts(artifacts, c.Scope) {
		mount := project.MountPath(c.Mappings, a)
		logger := c.Logger.WithField("artifact", a.Key()).WithField("mount", "/"+mount)

		if _, ok := project.FindModule(plan, a.ModuleID()); ok && c.Paths != nil {
			if paths, ok := c.Paths.ModuleOverlayPaths(a.ModuleID()); ok {
				for _, dir := range []string{paths.ResourcesDir, paths.ContentDir} {
					if dir == "" {
						continue
					}
					if isDir, _ := afero.IsDir(c.Host, dir); !isDir {
						continue
					}
					logger.WithField("dir", dir).Debug("merging directory")
					specs = append(specs, LayerSpec{Kind: overlay.KindDirectory, Mount: mount, Location: dir, Origin: a.Key()})
				}
				continue
			}
		}

		if a.File == "" {
			return nil, fmt.Errorf("%w: %s has no file", project.ErrUnresolvedArtifact, a.ID())
		}
		if isDir, _ := afero.IsDir(c.Host, a.File); isDir {
			logger.WithField("dir", a.File).Debug("merging directory")
			specs = append(specs, LayerSpec{Kind: overlay.KindDirectory, Mount: mount, Location: a.File, Origin: a.Key()})
			continue
		}
		logger.WithField("file", a.File).Debug("merging archive")
		specs = append(specs, LayerSpec{Kind: overlay.KindArchive, Mount: mount, Location: a.File, Origin: a.Key()})
	}

	if isDir, _ := afero.IsDir(c.Host, c.WebappSource); isDir {
		specs = append(specs, LayerSpec{Kind: overlay.KindDirectory, Location: c.WebappSource})
	}
	return specs, nil
}

// Compose opens specs and puts the generated asset layers below them.
//
// Assets are compiled from a separate tree holding the overlay artifacts at their mounts
// and the webapp source at the scan root. Generated layers of fail-on-error pipelines
// are compiled before returning, so a compile failure fails the composition
// with an [*assets.CompileError].
// Archives that cannot be opened fail it too.
func (c *Composer) Compose(ctx context.Context, specs []LayerSpec) (layers []overlay.Layer, err error) {
	opened := make([]overlay.Layer, 0, len(specs))
	defer func() {
		if err != nil {
			_ = overlay.New(opened...).Close()
		}
	}()

	compile := make([]overlay.Layer, 0, len(specs))
	for _, s := range specs {
		l, err := s.Open(c.Host)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", s.Descriptor(), err)
		}
		opened = append(opened, l)
		if s.Webapp() {
			l, err = overlay.NewLayer(c.ScanRoot, l.Kind(), l.Source())
			if err != nil {
				return nil, err
			}
		}
		compile = append(compile, l)
	}

	var generated []overlay.Layer
	if c.Builder != nil {
		generated, err = c.Builder.Build(ctx, overlay.New(compile...), c.Pipelines...)
		if err != nil {
			return nil, err
		}
		if err := assets.Warm(ctx, generated); err != nil {
			return nil, err
		}
	}
	for i, l := range generated {
		c.Logger.WithField("index", i).WithField("layer", l.Descriptor()).Debug("overlay")
	}
	for i, l := range opened {
		c.Logger.WithField("index", len(generated)+i).WithField("layer", l.Descriptor()).Debug("overlay")
	}
	return append(generated, opened...), nil
}
