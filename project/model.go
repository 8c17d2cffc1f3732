// Package project models the host build system as seen by the dev server:
// modules of a multi-module build, their resolved artifacts, and the
// collaborators that load, resolve and process them.
package project

import (
	"slices"
	"strings"
)

// OverlayType is the artifact type whose content is merged into the served tree.
const OverlayType = "jszip"

type Scope string

const (
	ScopeCompile  Scope = "compile"
	ScopeProvided Scope = "provided"
	ScopeRuntime  Scope = "runtime"
	ScopeTest     Scope = "test"
	ScopeSystem   Scope = "system"
)

// Includes reports whether a dependency declared with scope dep
// is visible on the classpath of scope s.
// An empty dep scope is compile.
func (s Scope) Includes(dep Scope) bool {
	if dep == "" {
		dep = ScopeCompile
	}
	switch s {
	case ScopeCompile:
		return dep == ScopeCompile || dep == ScopeProvided || dep == ScopeSystem
	case ScopeRuntime:
		return dep == ScopeCompile || dep == ScopeRuntime
	case ScopeTest:
		return true
	}
	return s == dep
}

type Dependency struct {
	GroupID    string `yaml:"groupId"`
	ArtifactID string `yaml:"artifactId"`
	Version    string `yaml:"version"`
	Type       string `yaml:"type"`
	Classifier string `yaml:"classifier"`
	Scope      Scope  `yaml:"scope"`
	// File optionally points at the artifact on the host.
	File string `yaml:"file"`
}

func (d Dependency) Key() string {
	return d.GroupID + ":" + d.ArtifactID
}

type ResourceDir struct {
	Dir       string `yaml:"directory"`
	Filtering bool   `yaml:"filtering"`
}

// Module is one buildable unit of the project.
type Module struct {
	GroupID    string
	ArtifactID string
	Version    string
	Packaging  string
	// Descriptor is the host path of the file describing this module.
	Descriptor    string
	BaseDir       string
	Dependencies  []Dependency
	Resources     []ResourceDir
	OutputDir     string
	TestOutputDir string
	// ContentDir is where an overlay-type module keeps its unprocessed content.
	ContentDir string
	Encoding   string
	Properties map[string]string
}

// ID is groupId:artifactId:version.
func (m Module) ID() string {
	return m.GroupID + ":" + m.ArtifactID + ":" + m.Version
}

// Key is groupId:artifactId.
func (m Module) Key() string {
	return m.GroupID + ":" + m.ArtifactID
}

// Artifact is a resolved dependency.
type Artifact struct {
	GroupID    string
	ArtifactID string
	Version    string
	Classifier string
	Type       string
	Scope      Scope
	// File is the host path of the artifact.
	// For modules of the same build it is the module's output directory.
	File string
}

// Key is groupId:artifactId.
func (a Artifact) Key() string {
	return a.GroupID + ":" + a.ArtifactID
}

// ID is groupId:artifactId:type[:classifier]:version.
func (a Artifact) ID() string {
	var b strings.Builder
	b.WriteString(a.GroupID)
	b.WriteByte(':')
	b.WriteString(a.ArtifactID)
	b.WriteByte(':')
	b.WriteString(a.Type)
	if a.Classifier != "" {
		b.WriteByte(':')
		b.WriteString(a.Classifier)
	}
	b.WriteByte(':')
	b.WriteString(a.Version)
	return b.String()
}

// ModuleID is the id of the module that would produce a.
func (a Artifact) ModuleID() string {
	return a.GroupID + ":" + a.ArtifactID + ":" + a.Version
}

// OverlayArtifacts filters artifacts of [OverlayType] visible in scope, keeping order.
func OverlayArtifacts(artifacts []Artifact, scope Scope) []Artifact {
	var out []Artifact
	for _, a := range artifacts {
		if a.Type == OverlayType && scope.Includes(a.Scope) {
			out = append(out, a)
		}
	}
	return out
}

// ClasspathElements returns the classpath of m for scope:
// the module's own output directories followed by every visible non-overlay artifact.
func ClasspathElements(m Module, artifacts []Artifact, scope Scope) []string {
	var out []string
	if scope == ScopeTest && m.TestOutputDir != "" {
		out = append(out, m.TestOutputDir)
	}
	if m.OutputDir != "" {
		out = append(out, m.OutputDir)
	}
	for _, a := range artifacts {
		if a.Type == OverlayType || a.File == "" || !scope.Includes(a.Scope) {
			continue
		}
		if slices.Contains(out, a.File) {
			continue
		}
		out = append(out, a.File)
	}
	return out
}

// FindModule returns the module of plan producing the artifact id groupId:artifactId:version.
func FindModule(plan []Module, moduleID string) (Module, bool) {
	for _, m := range plan {
		if m.ID() == moduleID {
			return m, true
		}
	}
	return Module{}, false
}
