package detect

import (
	"fmt"

	"github.com/ngicks/go-devrun/project"
)

// Empty stands in for the missing side of a length mismatch.
const Empty = "(empty)"

// Mismatch is one position at which two sequences differ.
type Mismatch struct {
	Index int
	Old   string
	New   string
}

// ClasspathChanged compares two classpaths index by index and returns every position
// that differs. The same entries in another order count as a change;
// class loading is order dependent.
func ClasspathChanged(prev, next []string) []Mismatch {
	return sequenceChanged(prev, next)
}

// DescriptorsChanged compares two layer compositions given as layer descriptors.
func DescriptorsChanged(prev, next []string) []Mismatch {
	return sequenceChanged(prev, next)
}

func sequenceChanged(prev, next []string) []Mismatch {
	var out []Mismatch
	for i := 0; i < max(len(prev), len(next)); i++ {
		o, n := Empty, Empty
		if i < len(prev) {
			o = prev[i]
		}
		if i < len(next) {
			n = next[i]
		}
		if o != n || (i >= len(prev)) != (i >= len(next)) {
			out = append(out, Mismatch{Index: i, Old: o, New: n})
		}
	}
	return out
}

// OverlayDiff is the set difference of two overlay artifact lists.
type OverlayDiff struct {
	Added   []project.Artifact
	Removed []project.Artifact
	// SizeChanged is set when the lists differ in length,
	// which matters even if every artifact has a counterpart.
	SizeChanged bool
}

func (d OverlayDiff) Changed() bool {
	return d.SizeChanged || len(d.Added) > 0 || len(d.Removed) > 0
}

// OverlaysChanged compares overlay artifacts by groupId:artifactId and version,
// both ways.
func OverlaysChanged(prev, next []project.Artifact) OverlayDiff {
	return OverlayDiff{
		Added:       missingFrom(next, prev),
		Removed:     missingFrom(prev, next),
		SizeChanged: len(prev) != len(next),
	}
}

// missingFrom returns artifacts of a without a counterpart in b.
func missingFrom(a, b []project.Artifact) []project.Artifact {
	var out []project.Artifact
	for _, x := range a {
		found := false
		for _, y := range b {
			if x.Key() == y.Key() && x.Version == y.Version {
				found = true
				break
			}
		}
		if !found {
			out = append(out, x)
		}
	}
	return out
}

// PlanEqual reports whether two sorted build plans have the same shape:
// the same modules in the same order, each with the same number of dependencies.
// When they differ, reason describes the first difference.
func PlanEqual(prev, next []project.Module) (equal bool, reason string) {
	if len(prev) != len(next) {
		return false, fmt.Sprintf("module count changed from %d to %d", len(prev), len(next))
	}
	for i := range prev {
		o, n := prev[i], next[i]
		if o.ID() != n.ID() {
			return false, fmt.Sprintf("module [%d] changed from %s to %s", i, o.ID(), n.ID())
		}
		if len(o.Dependencies) != len(n.Dependencies) {
			return false, fmt.Sprintf(
				"dependency tree of %s has been modified (%d -> %d dependencies)",
				n.ID(), len(o.Dependencies), len(n.Dependencies),
			)
		}
	}
	return true, ""
}
