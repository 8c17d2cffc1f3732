package rebuild

import (
	"context"
	"errors"
	"fmt"

	"github.com/ngicks/go-devrun/detect"
	"github.com/ngicks/go-devrun/fsutil"
	"github.com/ngicks/go-devrun/project"
	"github.com/spf13/afero"
)

// ProcessResourcesGoal is the goal handed to [project.ResourceFilter.Invoke].
const ProcessResourcesGoal = "process-resources"

// refreshResources looks for resource changes of overlay artifacts built by modules of the plan.
// A module whose changed directories use filtering is handed to the resource filter,
// otherwise its plain directories are copied over its output directory.
// It reports whether anything was processed.
func (o *Orchestrator) refreshResources(ctx context.Context) bool {
	last := o.seen.Resources
	o.logger.WithField("last", last).Debug("checking resource sources")

	watermark := last
	refreshed := false
	checked := map[string]bool{}
	for _, a := range project.OverlayArtifacts(o.artifacts, o.cfg.Scope) {
		m, ok := project.FindModule(o.plan, a.ModuleID())
		if !ok || len(m.Resources) == 0 {
			continue
		}

		var (
			changed, changedFiltered bool
			latest                   = detect.Minimal
		)
		for _, r := range m.Resources {
			if checked[r.Dir] {
				continue
			}
			checked[r.Dir] = true
			fp := detect.RecursiveLastModified(o.deps.Host, r.Dir)
			if fp.After(last) {
				changed = true
				changedFiltered = changedFiltered || r.Filtering
				latest = latest.Max(fp)
			}
		}
		if !changed {
			continue
		}

		logger := o.logger.WithField("artifact", a.Key())
		logger.Info("detected change in resources")
		var err error
		if changedFiltered {
			logger.Debug("resource filtering is used by module, invoking the build to handle update")
			err = o.invokeFilter(ctx, m)
		} else {
			logger.Debug("resource filtering is not used by module, handling update ourselves")
			err = o.copyResources(m)
		}
		if err != nil {
			logger.WithError(err).Info("change in resources not processed")
			continue
		}
		// a source stamped in the future must not be picked up again on every tick.
		watermark = watermark.Max(detect.Of(o.deps.Clock.Now())).Max(latest)
		refreshed = true
		logger.Info("change in resources processed")
	}
	o.seen.Resources = watermark
	return refreshed
}

func (o *Orchestrator) invokeFilter(ctx context.Context, m project.Module) error {
	if o.deps.Filter == nil {
		return fmt.Errorf("%w: no resource filter", project.ErrFilteringFailed)
	}
	err := o.deps.Filter.Invoke(ctx, m.Descriptor, ProcessResourcesGoal)
	if !errors.Is(err, project.ErrNoInvoker) {
		return err
	}
	return o.deps.Filter.Filter(ctx, project.FilterRequest{
		Resources:  m.Resources,
		OutputDir:  m.OutputDir,
		Encoding:   m.Encoding,
		Properties: m.Properties,
	})
}

func (o *Orchestrator) copyResources(m project.Module) error {
	if m.OutputDir == "" {
		return fmt.Errorf("%w: %s has no output directory", project.ErrFilteringFailed, m.ID())
	}
	for _, r := range m.Resources {
		if r.Filtering {
			continue
		}
		if isDir, _ := afero.IsDir(o.deps.Host, r.Dir); !isDir {
			continue
		}
		if err := o.deps.Host.MkdirAll(m.OutputDir, 0o755); err != nil {
			return err
		}
		n, err := fsutil.CopyFsOption[afero.Fs, afero.File]{OnlyNewer: true}.CopyAll(
			o.deps.Host,
			afero.NewIOFS(afero.NewBasePathFs(o.deps.Host, r.Dir)),
			m.OutputDir,
		)
		if err != nil {
			return fmt.Errorf("copying %s: %w", r.Dir, err)
		}
		o.logger.WithField("dir", r.Dir).WithField("files", n).Debug("copied resources")
	}
	return nil
}
