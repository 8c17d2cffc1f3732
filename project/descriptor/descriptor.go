// Package descriptor implements the project collaborators over per-module
// YAML descriptor files.
//
//	groupId: com.example
//	artifactId: webapp
//	version: 1.0.0
//	packaging: war
//	properties:
//	  title: Example
//	build:
//	  outputDirectory: target/classes
//	  resources:
//	    - directory: src/main/resources
//	      filtering: true
//	dependencies:
//	  - groupId: com.example
//	    artifactId: widgets
//	    version: 1.0.0
//	    type: jszip
//	modules:
//	  - widgets
//
// Relative paths are relative to the directory holding the descriptor.
package descriptor

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ngicks/go-devrun/project"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// FileName is the descriptor file looked up in module directories.
const FileName = "devrun.yaml"

type file struct {
	GroupID      string               `yaml:"groupId"`
	ArtifactID   string               `yaml:"artifactId"`
	Version      string               `yaml:"version"`
	Packaging    string               `yaml:"packaging"`
	Encoding     string               `yaml:"encoding"`
	Properties   map[string]string    `yaml:"properties"`
	Build        build                `yaml:"build"`
	Dependencies []project.Dependency `yaml:"dependencies"`
	Modules      []string             `yaml:"modules"`
}

type build struct {
	OutputDirectory     string                `yaml:"outputDirectory"`
	TestOutputDirectory string                `yaml:"testOutputDirectory"`
	ContentDirectory    string                `yaml:"contentDirectory"`
	Resources           []project.ResourceDir `yaml:"resources"`
}

// Project loads a descriptor tree and remembers the last successfully loaded plan,
// which backs its Resolver and OverlayPathsLookup implementations.
type Project struct {
	host afero.Fs
	root string
	// Repository is where artifacts not built by this project are looked up,
	// laid out as group/path/artifact/version/artifact-version[-classifier].type.
	repository string

	mu   sync.RWMutex
	plan []project.Module
}

var (
	_ project.PlanLoader         = (*Project)(nil)
	_ project.Resolver           = (*Project)(nil)
	_ project.OverlayPathsLookup = (*Project)(nil)
)

// New returns a Project whose root descriptor is root.
// root may name the descriptor file itself or the directory containing it.
func New(host afero.Fs, root, repository string) *Project {
	return &Project{host: host, root: root, repository: repository}
}

func (p *Project) Load(ctx context.Context) ([]project.Module, error) {
	var modules []project.Module
	visited := make(map[string]bool)

	var walk func(path string) error
	walk = func(path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		path = p.descriptorPath(path)
		if visited[path] {
			return nil
		}
		visited[path] = true

		m, children, err := p.parse(path)
		if err != nil {
			return err
		}
		modules = append(modules, m)
		for _, child := range children {
			if err := walk(filepath.Join(m.BaseDir, filepath.FromSlash(child))); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(p.root); err != nil {
		return nil, err
	}

	sorted, err := project.SortModules(modules)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.plan = sorted
	p.mu.Unlock()
	return sorted, nil
}

func (p *Project) descriptorPath(path string) string {
	if info, err := p.host.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, FileName)
	}
	return path
}

func (p *Project) parse(path string) (project.Module, []string, error) {
	b, err := afero.ReadFile(p.host, path)
	if err != nil {
		return project.Module{}, nil, fmt.Errorf("%w: %w", project.ErrMalformedDescriptor, err)
	}

	var f file
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return project.Module{}, nil, fmt.Errorf("%w: %s: %w", project.ErrMalformedDescriptor, path, err)
	}
	if f.GroupID == "" || f.ArtifactID == "" {
		return project.Module{}, nil, fmt.Errorf("%w: %s: groupId and artifactId are required", project.ErrMalformedDescriptor, path)
	}

	base := filepath.Dir(path)
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, filepath.FromSlash(p))
	}

	resources := make([]project.ResourceDir, len(f.Build.Resources))
	for i, r := range f.Build.Resources {
		resources[i] = project.ResourceDir{Dir: abs(r.Dir), Filtering: r.Filtering}
	}
	if len(resources) == 0 {
		resources = []project.ResourceDir{{Dir: abs("src/main/resources")}}
	}

	deps := make([]project.Dependency, len(f.Dependencies))
	for i, d := range f.Dependencies {
		d.Type = cmp.Or(d.Type, "jar")
		d.File = abs(d.File)
		deps[i] = d
	}

	return project.Module{
		GroupID:       f.GroupID,
		ArtifactID:    f.ArtifactID,
		Version:       f.Version,
		Packaging:     cmp.Or(f.Packaging, "jar"),
		Descriptor:    path,
		BaseDir:       base,
		Dependencies:  deps,
		Resources:     resources,
		OutputDir:     abs(cmp.Or(f.Build.OutputDirectory, "target/classes")),
		TestOutputDir: abs(cmp.Or(f.Build.TestOutputDirectory, "target/test-classes")),
		ContentDir:    abs(cmp.Or(f.Build.ContentDirectory, "src/main/js")),
		Encoding:      f.Encoding,
		Properties:    f.Properties,
	}, f.Modules, nil
}

func (p *Project) currentPlan() []project.Module {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.plan
}

// ModuleOverlayPaths reports the live directories of a module of the last loaded plan.
// The resources directory is the module's output directory, where processed resources land.
func (p *Project) ModuleOverlayPaths(moduleID string) (project.OverlayPaths, bool) {
	m, ok := project.FindModule(p.currentPlan(), moduleID)
	if !ok {
		return project.OverlayPaths{}, false
	}
	return project.OverlayPaths{ContentDir: m.ContentDir, ResourcesDir: m.OutputDir}, true
}
