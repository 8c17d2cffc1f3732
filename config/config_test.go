package config

import (
	"strings"
	"testing"
	"time"

	"github.com/ngicks/go-devrun/assets"
	"github.com/ngicks/go-devrun/project"
	"github.com/ngicks/go-devrun/rebuild"
	"github.com/spf13/afero"
	"gotest.tools/v3/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NilError(t, cfg.Validate())

	rc := cfg.Rebuild()
	assert.Equal(t, project.ScopeRuntime, rc.Scope)
	assert.Equal(t, rebuild.DefaultPollInterval, rc.PollInterval)
	assert.Equal(t, rebuild.DefaultMinSleep, rc.MinSleep)
	assert.DeepEqual(t, []string{"WEB-INF/web.xml"}, rc.RestartTriggers)
	assert.Equal(t, 2, len(rc.Pipelines))
	assert.Equal(t, "less", rc.Pipelines[0].Compiler.Name())
	assert.Equal(t, "sass", rc.Pipelines[1].Compiler.Name())
	assert.Assert(t, rc.Pipelines[0].FailOnError)
	assert.DeepEqual(t, []string{"**/_*.sass", "**/_*.scss"}, rc.Pipelines[1].Excludes)
}

func TestLoad(t *testing.T) {
	fsys := afero.NewMemMapFs()
	assert.NilError(t, afero.WriteFile(fsys, "/p/devrun.config.yaml", []byte(`
runModule: web
scope: compile
mappings:
  - select: "org.webjars:*"
    path: webjars
less:
  failOnError: false
  command: [lessc, --no-color, "-"]
sass:
  skip: true
encoding: windows-1252
pollInterval: 250ms
classpathCheckInterval: 1m
listen: ":9000"
filterCommand: [mvn, -q]
`), 0o644))

	cfg, err := Load(fsys, "/p/devrun.config.yaml")
	assert.NilError(t, err)

	assert.Equal(t, "web", cfg.RunModule)
	assert.Equal(t, project.ScopeCompile, cfg.Scope)
	assert.DeepEqual(t, []project.Mapping{{Select: "org.webjars:*", Path: "webjars"}}, cfg.Mappings)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval.Std())
	assert.Equal(t, time.Minute, cfg.ClasspathCheckInterval.Std())
	assert.Equal(t, ":9000", cfg.Listen)
	assert.DeepEqual(t, []string{"mvn", "-q"}, cfg.FilterCommand)

	// absent keys keep their default.
	assert.Equal(t, rebuild.DefaultMinSleep, cfg.MinSleep.Std())
	assert.DeepEqual(t, []string{"**/*.less"}, cfg.Less.Includes)
	assert.DeepEqual(t, []string{"war"}, cfg.RunPackages)

	pipelines := cfg.Pipelines()
	assert.Assert(t, !pipelines[0].FailOnError)
	assert.Assert(t, pipelines[1].Skip)
	less := pipelines[0].Compiler.(*assets.ExecCompiler)
	assert.Equal(t, "windows-1252", less.Encoding)
	assert.Equal(t, "a/b.css", less.MapName("a/b.less"))
}

func TestLoad_Errors(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write := func(content string) {
		assert.NilError(t, afero.WriteFile(fsys, "/c.yaml", []byte(content), 0o644))
	}

	_, err := Load(fsys, "/missing.yaml")
	assert.Assert(t, err != nil)

	write("pollInterval: fast\n")
	_, err = Load(fsys, "/c.yaml")
	assert.ErrorContains(t, err, "line 1")

	write("unknownKey: 1\n")
	_, err = Load(fsys, "/c.yaml")
	assert.ErrorContains(t, err, "unknownKey")

	write("scope: everything\nminSleep: 0s\nmappings: [{path: x}]\nless: {includes: ['[']}\nlisten: ''\n")
	_, err = Load(fsys, "/c.yaml")
	assert.ErrorContains(t, err, `unknown scope "everything"`)
	for _, msg := range []string{"minSleep must be positive", "mappings[0]: empty select", "less: invalid pattern", "listen or fuseMount"} {
		assert.Assert(t, strings.Contains(err.Error(), msg), "missing %q in %v", msg, err)
	}
}

func TestDecode_Empty(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	assert.NilError(t, err)
	assert.DeepEqual(t, Default(), cfg)
}

func TestDuration_Marshal(t *testing.T) {
	v, err := Duration(1500 * time.Millisecond).MarshalYAML()
	assert.NilError(t, err)
	assert.Equal(t, "1.5s", v)
}
