package detect

import "slices"

// Snapshot is one observation of everything the poller watches.
type Snapshot struct {
	// Poms is the latest modification of any module descriptor.
	Poms Fingerprint
	// Classpath is the latest modification below any classpath entry.
	Classpath Fingerprint
	// Resources is the latest modification below any watched resource directory.
	Resources Fingerprint
	// Triggers is the latest modification of the paths forcing a reload.
	Triggers Fingerprint
	// Entries is the classpath itself.
	Entries []string
}

// Delta tells which dimension of a [Snapshot] changed.
type Delta struct {
	Poms      bool
	Classpath bool
	Resources bool
	Triggers  bool
	Entries   bool
}

func (d Delta) Any() bool {
	return d.Poms || d.Classpath || d.Resources || d.Triggers || d.Entries
}

// Compare tells what changed since prev. Fingerprints must have grown to count as changed.
// Entries are compared position by position.
func (s Snapshot) Compare(prev Snapshot) Delta {
	return Delta{
		Poms:      s.Poms.After(prev.Poms),
		Classpath: s.Classpath.After(prev.Classpath),
		Resources: s.Resources.After(prev.Resources),
		Triggers:  s.Triggers.After(prev.Triggers),
		Entries:   len(ClasspathChanged(prev.Entries, s.Entries)) > 0,
	}
}

func (s Snapshot) Clone() Snapshot {
	s.Entries = slices.Clone(s.Entries)
	return s
}
