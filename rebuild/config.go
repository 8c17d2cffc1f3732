package rebuild

import (
	"context"
	"errors"
	"time"

	"github.com/ngicks/go-devrun/assets"
	"github.com/ngicks/go-devrun/clock"
	"github.com/ngicks/go-devrun/overlay"
	"github.com/ngicks/go-devrun/project"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	DefaultPollInterval           = 500 * time.Millisecond
	DefaultClasspathCheckInterval = 10 * time.Second
	DefaultMinSleep               = 100 * time.Millisecond
)

var (
	DefaultRestartTriggers = []string{"WEB-INF/web.xml"}
	DefaultWebappSource    = "src/main/webapp"
	DefaultWebappDir       = "target/webapp"
)

// ServingContext is what serves the tree. The orchestrator only drives its lifecycle.
type ServingContext interface {
	SetBaseResource(fsys *overlay.Fs)
	SetClassLoader(entries []string)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Config is the immutable configuration of an [Orchestrator].
// Zero fields take the defaults.
type Config struct {
	// RunModule restricts which module is served, by artifactId or groupId:artifactId.
	RunModule   string
	RunPackages []string
	Scope       project.Scope
	// WebappSource is the webapp source directory, mounted at the root with the highest priority.
	// Relative paths are relative to the served module's base directory.
	WebappSource string
	// WebappDir is where compiled assets are persisted.
	// Relative paths are relative to the served module's base directory.
	WebappDir string
	// ScanRoot is where WebappSource is mounted in the tree assets are compiled from.
	ScanRoot  string
	Mappings  []project.Mapping
	Pipelines []assets.Pipeline
	// RestartTriggers are virtual paths whose modification reloads the classpath.
	RestartTriggers []string

	PollInterval           time.Duration
	ClasspathCheckInterval time.Duration
	MinSleep               time.Duration
}

func (c Config) withDefaults() Config {
	if c.Scope == "" {
		c.Scope = project.ScopeRuntime
	}
	if c.WebappSource == "" {
		c.WebappSource = DefaultWebappSource
	}
	if c.WebappDir == "" {
		c.WebappDir = DefaultWebappDir
	}
	if c.ScanRoot == "" {
		c.ScanRoot = assets.DefaultScanRoot
	}
	if c.RestartTriggers == nil {
		c.RestartTriggers = DefaultRestartTriggers
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ClasspathCheckInterval <= 0 {
		c.ClasspathCheckInterval = DefaultClasspathCheckInterval
	}
	if c.MinSleep <= 0 {
		c.MinSleep = DefaultMinSleep
	}
	return c
}

// Deps are the collaborators of an [Orchestrator].
// Filter, Paths, Clock and Logger are optional.
type Deps struct {
	Host     afero.Fs
	Loader   project.PlanLoader
	Resolver project.Resolver
	Filter   project.ResourceFilter
	Paths    project.OverlayPathsLookup
	Context  ServingContext
	Clock    clock.Clock
	Logger   logrus.FieldLogger
}

func (d Deps) validate() (Deps, error) {
	var errs []error
	if d.Host == nil {
		errs = append(errs, errors.New("nil Host"))
	}
	if d.Loader == nil {
		errs = append(errs, errors.New("nil Loader"))
	}
	if d.Resolver == nil {
		errs = append(errs, errors.New("nil Resolver"))
	}
	if d.Context == nil {
		errs = append(errs, errors.New("nil Context"))
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	return d, errors.Join(errs...)
}
