package project

import (
	"context"
	"errors"
)

var (
	ErrMalformedDescriptor = errors.New("malformed module descriptor")
	ErrDependencyCycle     = errors.New("module dependency cycle")
	ErrDuplicateModule     = errors.New("duplicate module")
	ErrUnresolvedArtifact  = errors.New("unresolved artifact")
	ErrFilteringFailed     = errors.New("resource filtering failed")
	// ErrNoInvoker is returned by ResourceFilter.Invoke when no external process is configured.
	ErrNoInvoker = errors.New("no external invoker configured")
)

// IsTransient reports whether err is expected to go away once the user fixes their files.
// The poller logs such errors and tries again later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrMalformedDescriptor) ||
		errors.Is(err, ErrDependencyCycle) ||
		errors.Is(err, ErrDuplicateModule) ||
		errors.Is(err, ErrUnresolvedArtifact) ||
		errors.Is(err, ErrFilteringFailed)
}

// PlanLoader re-reads every module descriptor and returns the modules
// sorted so that dependencies come before their dependents.
type PlanLoader interface {
	Load(ctx context.Context) ([]Module, error)
}

// Resolver resolves the dependencies of m visible in scope.
type Resolver interface {
	Resolve(ctx context.Context, m Module, scope Scope) ([]Artifact, error)
}

type FilterRequest struct {
	Resources  []ResourceDir
	OutputDir  string
	Encoding   string
	Properties map[string]string
}

// ResourceFilter processes resource directories into an output directory.
type ResourceFilter interface {
	// Filter copies req.Resources into req.OutputDir, expanding properties
	// in directories that enable filtering.
	Filter(ctx context.Context, req FilterRequest) error
	// Invoke runs goal against the module described by descriptor in a separate process.
	Invoke(ctx context.Context, descriptor string, goal string) error
}

// OverlayPaths are the live directories of a module of this build
// that stand in for its packaged overlay archive.
type OverlayPaths struct {
	ContentDir   string
	ResourcesDir string
}

type OverlayPathsLookup interface {
	ModuleOverlayPaths(moduleID string) (OverlayPaths, bool)
}
