package descriptor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ngicks/go-devrun/project"
)

// Resolve resolves the dependencies of m visible in scope.
// Dependencies on modules of the last loaded plan resolve to the module output directory
// and pull in that module's own dependencies, except test and provided ones.
// Others resolve to the declared file or to the repository layout.
// The first occurrence of a groupId:artifactId wins.
func (p *Project) Resolve(ctx context.Context, m project.Module, scope project.Scope) ([]project.Artifact, error) {
	plan := p.currentPlan()
	seen := map[string]bool{m.Key(): true}
	var out []project.Artifact

	var walk func(deps []project.Dependency, inherited project.Scope) error
	walk = func(deps []project.Dependency, inherited project.Scope) error {
		for _, d := range deps {
			if err := ctx.Err(); err != nil {
				return err
			}
			depScope := d.Scope
			if depScope == "" {
				depScope = project.ScopeCompile
			}
			if inherited != "" {
				if depScope == project.ScopeTest || depScope == project.ScopeProvided {
					continue
				}
				if inherited == project.ScopeRuntime || depScope == project.ScopeRuntime {
					depScope = project.ScopeRuntime
				} else {
					depScope = inherited
				}
			}
			if !scope.Includes(depScope) || seen[d.Key()] {
				continue
			}
			seen[d.Key()] = true

			a := project.Artifact{
				GroupID:    d.GroupID,
				ArtifactID: d.ArtifactID,
				Version:    d.Version,
				Classifier: d.Classifier,
				Type:       d.Type,
				Scope:      depScope,
			}
			if mod, ok := project.FindModule(plan, a.ModuleID()); ok {
				a.File = mod.OutputDir
				out = append(out, a)
				if err := walk(mod.Dependencies, depScope); err != nil {
					return err
				}
				continue
			}

			file := d.File
			if file == "" {
				file = p.repositoryPath(d)
			}
			if _, err := p.host.Stat(file); err != nil {
				return fmt.Errorf("%w: %s (%s): %w", project.ErrUnresolvedArtifact, a.ID(), file, err)
			}
			a.File = file
			out = append(out, a)
		}
		return nil
	}
	if err := walk(m.Dependencies, ""); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Project) repositoryPath(d project.Dependency) string {
	name := d.ArtifactID + "-" + d.Version
	if d.Classifier != "" {
		name += "-" + d.Classifier
	}
	name += "." + d.Type
	return filepath.Join(
		p.repository,
		filepath.FromSlash(strings.ReplaceAll(d.GroupID, ".", "/")),
		d.ArtifactID,
		d.Version,
		name,
	)
}
