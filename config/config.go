// Package config holds the user facing configuration of the dev server
// and its YAML representation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ngicks/go-devrun/assets"
	"github.com/ngicks/go-devrun/project"
	"github.com/ngicks/go-devrun/rebuild"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the project root when no path is given.
const DefaultFileName = "devrun.config.yaml"

// Duration is a time.Duration written as a string, e.g. "500ms".
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// Pipeline configures one stylesheet compiler.
type Pipeline struct {
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
	FailOnError  bool     `yaml:"failOnError"`
	Skip         bool     `yaml:"skip"`
	ForceIfOlder bool     `yaml:"forceIfOlder"`
	// Command overrides the compiler command line. The source is written to its stdin.
	Command []string `yaml:"command"`
}

// Config is immutable once loaded. Pass it by value.
type Config struct {
	RunModule   string        `yaml:"runModule"`
	RunPackages []string      `yaml:"runPackages"`
	Scope       project.Scope `yaml:"scope"`
	// Repository is where dependency artifacts are looked up.
	Repository   string            `yaml:"repository"`
	WebappSource string            `yaml:"webappSource"`
	WebappDir    string            `yaml:"webappDir"`
	Mappings     []project.Mapping `yaml:"mappings"`
	Less         Pipeline          `yaml:"less"`
	Sass         Pipeline          `yaml:"sass"`
	// Encoding of stylesheet sources.
	Encoding string `yaml:"encoding"`

	PollInterval           Duration `yaml:"pollInterval"`
	ClasspathCheckInterval Duration `yaml:"classpathCheckInterval"`
	MinSleep               Duration `yaml:"minSleep"`
	RestartTriggers        []string `yaml:"restartTriggers"`

	// Listen is the address of the HTTP serving context.
	Listen string `yaml:"listen"`
	// FuseMount, if set, exports the tree at this host directory instead of serving HTTP.
	FuseMount string `yaml:"fuseMount"`
	// FilterCommand invokes the host build tool for filtered resources.
	// Without it resources are filtered in process.
	FilterCommand []string `yaml:"filterCommand"`
}

func Default() Config {
	less := assets.LessPipeline(nil)
	sass := assets.SassPipeline(nil)
	return Config{
		RunPackages:  project.DefaultRunPackages,
		Scope:        project.ScopeRuntime,
		WebappSource: rebuild.DefaultWebappSource,
		WebappDir:    rebuild.DefaultWebappDir,
		Less: Pipeline{
			Includes:    less.Includes,
			Excludes:    less.Excludes,
			FailOnError: less.FailOnError,
		},
		Sass: Pipeline{
			Includes:    sass.Includes,
			Excludes:    sass.Excludes,
			FailOnError: sass.FailOnError,
		},
		Encoding:               "UTF-8",
		PollInterval:           Duration(rebuild.DefaultPollInterval),
		ClasspathCheckInterval: Duration(rebuild.DefaultClasspathCheckInterval),
		MinSleep:               Duration(rebuild.DefaultMinSleep),
		RestartTriggers:        rebuild.DefaultRestartTriggers,
		Listen:                 "127.0.0.1:8080",
	}
}

// Load reads name from fsys over [Default]. Keys absent from the file keep their default.
// Unknown keys are an error.
func Load(fsys afero.Fs, name string) (Config, error) {
	b, err := afero.ReadFile(fsys, name)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Decode(bytes.NewReader(b))
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", name, err)
	}
	return cfg, nil
}

func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Scope {
	case project.ScopeCompile, project.ScopeProvided, project.ScopeRuntime, project.ScopeTest, project.ScopeSystem:
	default:
		errs = append(errs, fmt.Errorf("unknown scope %q", c.Scope))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("pollInterval must be positive, got %s", c.PollInterval))
	}
	if c.ClasspathCheckInterval < 0 {
		errs = append(errs, fmt.Errorf("classpathCheckInterval must not be negative, got %s", c.ClasspathCheckInterval))
	}
	if c.MinSleep <= 0 {
		errs = append(errs, fmt.Errorf("minSleep must be positive, got %s", c.MinSleep))
	}
	for i, m := range c.Mappings {
		if m.Select == "" {
			errs = append(errs, fmt.Errorf("mappings[%d]: empty select", i))
		}
	}
	for name, p := range map[string]Pipeline{"less": c.Less, "sass": c.Sass} {
		for _, pattern := range append(append([]string(nil), p.Includes...), p.Excludes...) {
			if !doublestar.ValidatePattern(pattern) {
				errs = append(errs, fmt.Errorf("%s: invalid pattern %q", name, pattern))
			}
		}
	}
	if c.FuseMount == "" && c.Listen == "" {
		errs = append(errs, errors.New("one of listen or fuseMount is required"))
	}
	return errors.Join(errs...)
}

// Pipelines returns the asset pipelines, skipped ones included.
func (c Config) Pipelines() []assets.Pipeline {
	less := assets.Less(c.Less.Command...)
	less.Encoding = c.Encoding
	sass := assets.Sass(c.Sass.Command...)
	sass.Encoding = c.Encoding
	return []assets.Pipeline{
		c.Less.pipeline(less),
		c.Sass.pipeline(sass),
	}
}

func (p Pipeline) pipeline(c assets.Compiler) assets.Pipeline {
	return assets.Pipeline{
		Compiler:     c,
		Includes:     p.Includes,
		Excludes:     p.Excludes,
		FailOnError:  p.FailOnError,
		ForceIfOlder: p.ForceIfOlder,
		Skip:         p.Skip,
	}
}

func (c Config) Rebuild() rebuild.Config {
	return rebuild.Config{
		RunModule:              c.RunModule,
		RunPackages:            c.RunPackages,
		Scope:                  c.Scope,
		WebappSource:           c.WebappSource,
		WebappDir:              c.WebappDir,
		Mappings:               c.Mappings,
		Pipelines:              c.Pipelines(),
		RestartTriggers:        c.RestartTriggers,
		PollInterval:           c.PollInterval.Std(),
		ClasspathCheckInterval: c.ClasspathCheckInterval.Std(),
		MinSleep:               c.MinSleep.Std(),
	}
}
