// Package rebuild keeps a serving context in sync with the project while it is edited.
//
// An [Orchestrator] polls cheap fingerprints of the project: descriptor modification
// times, classpath contents and resource directories. Depending on what moved it
// refreshes resources in place, restarts the serving context over a freshly composed
// overlay, or gives up when the build plan itself changed shape.
package rebuild

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/ngicks/go-common/serr"
	"github.com/ngicks/go-devrun/assets"
	"github.com/ngicks/go-devrun/detect"
	"github.com/ngicks/go-devrun/overlay"
	"github.com/ngicks/go-devrun/project"
	"github.com/sirupsen/logrus"
)

// Orchestrator owns the lifecycle of a [ServingContext].
//
// Tick and Run must be called from a single goroutine.
// Current and State may be called from anywhere.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger logrus.FieldLogger

	state   atomicState
	current atomic.Pointer[overlay.Fs]

	composer  *Composer
	plan      []project.Module
	module    project.Module
	artifacts []project.Artifact
	classpath []string
	specs     []LayerSpec

	// seen holds the watermarks of everything already acted upon.
	seen               detect.Snapshot
	nextClasspathCheck time.Time

	// changes detected on an earlier tick whose restart could not complete yet.
	pendingClasspath bool
	pendingOverlays  bool

	fatal error
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	deps, err := deps.validate()
	if err != nil {
		return nil, fmt.Errorf("rebuild.New: %w", err)
	}
	return &Orchestrator{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: deps.Logger,
	}, nil
}

// Current returns the overlay being served, or nil before Start.
func (o *Orchestrator) Current() *overlay.Fs {
	return o.current.Load()
}

func (o *Orchestrator) State() State {
	return o.state.Load()
}

// Module returns the module being served.
func (o *Orchestrator) Module() project.Module {
	return o.module
}

// Classpath returns the classpath handed to the serving context.
func (o *Orchestrator) Classpath() []string {
	return slices.Clone(o.classpath)
}

// Err returns the fatal error that aborted o, if any.
func (o *Orchestrator) Err() error {
	return o.fatal
}

func (o *Orchestrator) abs(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Start loads the build plan, selects the module to serve, composes the first
// tree and starts the serving context. Any failure is fatal.
func (o *Orchestrator) Start(ctx context.Context) error {
	if s := o.State(); s != Starting {
		return fmt.Errorf("rebuild: cannot start in state %s", s)
	}

	plan, err := o.deps.Loader.Load(ctx)
	if err != nil {
		return o.abort(fmt.Errorf("loading build plan: %w", err))
	}
	module, err := project.Select(plan, o.cfg.RunModule, o.cfg.RunPackages)
	if err != nil {
		return o.abort(err)
	}
	o.logger = o.deps.Logger.WithField("module", module.Key())
	o.logger.Info("starting dev server")

	artifacts, err := o.deps.Resolver.Resolve(ctx, module, o.cfg.Scope)
	if err != nil {
		return o.abort(fmt.Errorf("resolving %s: %w", module.ID(), err))
	}

	o.composer = &Composer{
		Host:         o.deps.Host,
		Paths:        o.deps.Paths,
		Mappings:     o.cfg.Mappings,
		Scope:        o.cfg.Scope,
		WebappSource: o.abs(module.BaseDir, o.cfg.WebappSource),
		ScanRoot:     o.cfg.ScanRoot,
		Builder: assets.NewBuilder(
			o.deps.Host,
			o.abs(module.BaseDir, o.cfg.WebappDir),
			o.cfg.ScanRoot,
			o.logger,
		),
		Pipelines: o.cfg.Pipelines,
		Logger:    o.logger,
	}

	specs, err := o.composer.Specs(plan, artifacts)
	if err != nil {
		return o.abort(err)
	}
	layers, err := o.composer.Compose(ctx, specs)
	if err != nil {
		return o.abort(err)
	}
	fsys := overlay.New(layers...)

	o.plan, o.module, o.artifacts, o.specs = plan, module, artifacts, specs
	o.classpath = project.ClasspathElements(module, artifacts, o.cfg.Scope)

	o.deps.Context.SetClassLoader(o.classpath)
	o.deps.Context.SetBaseResource(fsys)
	if err := o.deps.Context.Start(ctx); err != nil {
		_ = fsys.Close()
		return o.abort(fmt.Errorf("starting context: %w", err))
	}
	o.current.Store(fsys)

	now := o.deps.Clock.Now()
	o.seen = detect.Snapshot{
		Poms:      o.pomsLastModified(),
		Classpath: detect.Of(now),
		Resources: detect.Of(now),
		Triggers:  o.triggersLastModified(fsys),
		Entries:   slices.Clone(o.classpath),
	}
	o.nextClasspathCheck = now.Add(o.cfg.ClasspathCheckInterval)
	o.state.Store(Serving)
	o.logger.Info("context started, will restart if changes to module descriptors are detected")
	return nil
}

func (o *Orchestrator) abort(err error) error {
	o.fatal = err
	o.state.Store(Aborted)
	return err
}

func (o *Orchestrator) pomsLastModified() detect.Fingerprint {
	names := make([]string, len(o.plan))
	for i, m := range o.plan {
		names[i] = m.Descriptor
	}
	return detect.LastModified(o.deps.Host, names...)
}

func (o *Orchestrator) classpathLastModified() detect.Fingerprint {
	return detect.TreesLastModified(o.deps.Host, o.classpath...)
}

func (o *Orchestrator) triggersLastModified(fsys *overlay.Fs) detect.Fingerprint {
	result := detect.Minimal
	if fsys == nil {
		return result
	}
	for _, p := range o.cfg.RestartTriggers {
		if info, err := fsys.Stat(p); err == nil {
			result = result.Max(detect.Of(info.ModTime()))
		}
	}
	return result
}

// Tick runs one poll. It never blocks beyond the collaborators it calls.
//
// Recoverable errors are logged and reported as [DecisionSkipped] with a nil error.
// A non nil error is fatal: the orchestrator is aborted and every later tick
// returns [ErrAborted].
func (o *Orchestrator) Tick(ctx context.Context) (Decision, error) {
	switch o.State() {
	case Starting:
		return DecisionNone, ErrNotStarted
	case Aborted, Stopped:
		return DecisionAborted, ErrAborted
	}

	now := o.deps.Clock.Now()
	poms := o.pomsLastModified()
	pomsChanged := poms.After(o.seen.Poms)
	classpathChanged := o.pendingClasspath
	overlaysChanged := o.pendingOverlays

	if triggers := o.triggersLastModified(o.Current()); triggers.After(o.seen.Triggers) {
		o.logger.WithField("modified", triggers).Info("restart trigger modified")
		classpathChanged = true
	}
	if !now.Before(o.nextClasspathCheck) {
		fp := o.classpathLastModified()
		o.logger.WithField("last", o.seen.Classpath).WithField("current", fp).Debug("checking classpath")
		if fp.After(o.seen.Classpath) {
			o.logger.Info("classpath content changed")
			classpathChanged = true
			o.seen.Classpath = fp
		}
		o.nextClasspathCheck = now.Add(o.cfg.ClasspathCheckInterval)
	}

	if !pomsChanged && !classpathChanged && !overlaysChanged {
		if o.refreshResources(ctx) {
			return DecisionRefreshed, nil
		}
		return DecisionNone, nil
	}

	if pomsChanged {
		o.logger.Info("change in module descriptors detected, re-parsing to evaluate impact")
		// never evaluate the same change twice, even when it cannot be processed.
		o.seen.Poms = poms

		changed, fatal, err := o.reparse(ctx)
		if err != nil {
			if fatal {
				o.logger.WithError(err).Error("build plan modified, restart required")
				return DecisionAborted, o.abort(err)
			}
			o.logger.WithError(err).Info("re-parse aborted")
			o.pendingClasspath = classpathChanged
			o.pendingOverlays = overlaysChanged
			return DecisionSkipped, nil
		}
		classpathChanged = classpathChanged || changed.classpath
		overlaysChanged = overlaysChanged || changed.overlays
	}

	if !classpathChanged && !overlaysChanged {
		return DecisionNone, nil
	}
	return o.restart(ctx, classpathChanged, overlaysChanged)
}

type reparsed struct {
	classpath bool
	overlays  bool
}

// reparse loads the plan again and tells what differs from the one being served.
// The new model replaces the old one only if the tick is not abandoned.
func (o *Orchestrator) reparse(ctx context.Context) (changed reparsed, fatal bool, err error) {
	plan, err := o.deps.Loader.Load(ctx)
	if err != nil {
		return changed, false, describeLoadErr(err)
	}

	if eq, reason := detect.PlanEqual(o.plan, plan); !eq {
		return changed, true, fmt.Errorf("%w: %s", ErrBuildPlanModified, reason)
	}
	module, ok := project.FindModule(plan, o.module.ID())
	if !ok {
		return changed, true, fmt.Errorf("%w: %s removed from the build plan", ErrBuildPlanModified, o.module.ID())
	}

	artifacts, err := o.deps.Resolver.Resolve(ctx, module, o.cfg.Scope)
	if err != nil {
		return changed, false, fmt.Errorf("dependency resolution problem: %w", err)
	}

	o.logger.Debug("comparing effective classpath of new and old models")
	classpath := project.ClasspathElements(module, artifacts, o.cfg.Scope)
	if mismatches := detect.ClasspathChanged(o.classpath, classpath); len(mismatches) > 0 {
		for _, m := range mismatches {
			o.logger.WithField("index", m.Index).WithField("old", m.Old).WithField("new", m.New).Debug("classpath entry")
		}
		o.logger.Info("effective classpath has changed")
		changed.classpath = true
	} else {
		o.logger.Debug("effective classpath is unchanged")
	}

	o.logger.Debug("comparing effective overlays of new and old models")
	diff := detect.OverlaysChanged(
		project.OverlayArtifacts(o.artifacts, o.cfg.Scope),
		project.OverlayArtifacts(artifacts, o.cfg.Scope),
	)
	for _, a := range diff.Added {
		o.logger.WithField("artifact", a.ID()).Debug("added overlay artifact")
	}
	for _, a := range diff.Removed {
		o.logger.WithField("artifact", a.ID()).Debug("removed overlay artifact")
	}
	if diff.Changed() {
		o.logger.Info("effective overlays have changed")
		changed.overlays = true
	} else {
		o.logger.Debug("effective overlays are unchanged")
	}

	o.logger.Debug("comparing overlay paths of new and old models")
	specs, err := o.composer.Specs(plan, artifacts)
	if err != nil {
		return changed, false, fmt.Errorf("overlay evaluation problem: %w", err)
	}
	if mismatches := detect.DescriptorsChanged(Descriptors(o.specs), Descriptors(specs)); len(mismatches) > 0 {
		for _, m := range mismatches {
			o.logger.WithField("index", m.Index).WithField("old", m.Old).WithField("new", m.New).Debug("overlay layer")
		}
		o.logger.Info("overlay module paths have changed")
		changed.overlays = true
	} else {
		o.logger.Debug("overlay module paths are unchanged")
	}

	o.plan, o.module, o.artifacts, o.classpath = plan, module, artifacts, classpath
	return changed, false, nil
}

func describeLoadErr(err error) error {
	switch {
	case errors.Is(err, project.ErrMalformedDescriptor):
		return fmt.Errorf("malformed module descriptor(s): %w", err)
	case errors.Is(err, project.ErrDependencyCycle):
		return fmt.Errorf("dependency cycle in project model: %w", err)
	case errors.Is(err, project.ErrDuplicateModule):
		return fmt.Errorf("duplicate modules in project model: %w", err)
	}
	return fmt.Errorf("a problem prevented sorting the project model: %w", err)
}

// restart composes the new tree first, so that a compile failure leaves the
// running context alone. Only then is the context stopped, updated and started.
func (o *Orchestrator) restart(ctx context.Context, classpathChanged, overlaysChanged bool) (Decision, error) {
	o.logger.Info("restarting context to take account of changes")

	specs, err := o.composer.Specs(o.plan, o.artifacts)
	if err == nil {
		var layers []overlay.Layer
		layers, err = o.composer.Compose(ctx, specs)
		if err == nil {
			return o.swap(ctx, specs, overlay.New(layers...), classpathChanged)
		}
	}

	var cerr *assets.CompileError
	if errors.As(err, &cerr) || project.IsTransient(err) {
		o.pendingClasspath = classpathChanged
		o.pendingOverlays = overlaysChanged
		o.logger.WithError(err).Warn("rebuild pass aborted, retrying on next tick")
		return DecisionSkipped, nil
	}
	o.logger.WithError(err).Error("composing overlay failed")
	return DecisionAborted, o.abort(err)
}

func (o *Orchestrator) swap(ctx context.Context, specs []LayerSpec, fsys *overlay.Fs, classpathChanged bool) (Decision, error) {
	o.state.Store(Restarting)

	if err := o.deps.Context.Stop(ctx); err != nil {
		_ = fsys.Close()
		return DecisionAborted, o.abort(fmt.Errorf("stopping context: %w", err))
	}
	if classpathChanged {
		o.logger.Info("updating classpath")
		o.deps.Context.SetClassLoader(o.classpath)
	}
	o.logger.Info("updating overlays")
	o.deps.Context.SetBaseResource(fsys)
	if err := o.deps.Context.Start(ctx); err != nil {
		_ = fsys.Close()
		return DecisionAborted, o.abort(fmt.Errorf("starting context: %w", err))
	}

	if old := o.current.Swap(fsys); old != nil {
		if err := old.Close(); err != nil {
			o.logger.WithError(err).Warn("closing previous overlay")
		}
	}
	o.specs = specs
	o.pendingClasspath, o.pendingOverlays = false, false
	o.seen.Triggers = o.triggersLastModified(fsys)
	o.seen.Entries = slices.Clone(o.classpath)
	o.state.Store(Serving)
	o.logger.Info("context restarted")
	return DecisionRestarted, nil
}

// Run starts o if needed and ticks until ctx is cancelled or a fatal error occurs.
// Between ticks it sleeps until the next poll is due, but never less than MinSleep.
// The serving context is stopped on the way out, whatever the reason.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	defer func() {
		if shutdownErr := o.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			o.logger.WithError(shutdownErr).Warn("shutdown")
		}
	}()

	if o.State() == Starting {
		if err := o.Start(ctx); err != nil {
			return err
		}
	}

	for {
		next := o.deps.Clock.Now().Add(o.cfg.PollInterval)
		d, err := o.Tick(ctx)
		if err != nil {
			return err
		}
		if d != DecisionNone {
			o.logger.WithField("decision", d).Debug("tick")
		}
		wait := max(o.cfg.MinSleep, next.Sub(o.deps.Clock.Now()))
		if err := o.deps.Clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Shutdown stops the serving context, best effort, and closes the served overlay.
// Errors are reported, not retried. Calling it again does nothing.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	switch o.State() {
	case Stopped:
		return nil
	case Starting:
		o.state.Store(Stopped)
		return nil
	case Aborted:
	default:
		o.state.Store(Stopped)
	}

	fsys := o.current.Swap(nil)
	if fsys == nil {
		// nothing was started, or shutdown already ran after an abort.
		return nil
	}
	errs := []serr.PrefixErr{
		{P: "stopping context: ", E: o.deps.Context.Stop(ctx)},
		{P: "closing overlay: ", E: fsys.Close()},
	}
	return serr.GatherPrefixed(errs)
}
