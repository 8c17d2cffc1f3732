package project

import (
	"path"
	"strings"

	"github.com/ngicks/go-devrun/fsutil/pathutil"
)

// Mapping mounts overlay artifacts matching Select at Path.
//
// Select is groupId:artifactId[:type[:classifier]] where every segment is a
// [path.Match] pattern. Omitted trailing segments match anything.
type Mapping struct {
	Select string `yaml:"select"`
	Path   string `yaml:"path"`
}

func (m Mapping) Matches(a Artifact) bool {
	want := strings.Split(m.Select, ":")
	got := []string{a.GroupID, a.ArtifactID, a.Type, a.Classifier}
	if len(want) > len(got) {
		return false
	}
	for i, pattern := range want {
		ok, err := path.Match(pattern, got[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// MountPath returns the virtual mount path of a: the path of the first matching mapping,
// or the root when none match.
func MountPath(mappings []Mapping, a Artifact) string {
	for _, m := range mappings {
		if m.Matches(a) {
			p, err := pathutil.Clean(m.Path)
			if err != nil {
				return ""
			}
			return p
		}
	}
	return ""
}
