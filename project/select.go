package project

import (
	"errors"
	"fmt"
	"slices"
)

var ErrNoRunnableModule = errors.New("no runnable module")

// DefaultRunPackages are the packagings that can be served.
var DefaultRunPackages = []string{"war"}

// Select picks the module to serve.
// runModule, if non empty, must equal the artifactId or groupId:artifactId.
// The module's packaging must be one of runPackages, or [DefaultRunPackages] when empty.
func Select(plan []Module, runModule string, runPackages []string) (Module, error) {
	if len(runPackages) == 0 {
		runPackages = DefaultRunPackages
	}
	for _, m := range plan {
		if runModule != "" && runModule != m.ArtifactID && runModule != m.Key() {
			continue
		}
		if !slices.Contains(runPackages, m.Packaging) {
			continue
		}
		return m, nil
	}
	if runModule != "" {
		return Module{}, fmt.Errorf("%w: %q with packaging in %v", ErrNoRunnableModule, runModule, runPackages)
	}
	return Module{}, fmt.Errorf("%w: packaging in %v", ErrNoRunnableModule, runPackages)
}
