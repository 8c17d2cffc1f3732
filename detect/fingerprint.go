// Package detect computes cheap change fingerprints and compares
// successive views of the project to tell what kind of change happened.
package detect

import (
	"io/fs"
	"math"
	"time"

	"github.com/spf13/afero"
)

// Fingerprint is the latest modification time observed, in unix nanoseconds.
// Fingerprints only grow as files change, so a larger value means something changed.
type Fingerprint int64

// Minimal is the fingerprint of nothing at all.
const Minimal Fingerprint = math.MinInt64

func Of(t time.Time) Fingerprint {
	return Fingerprint(t.UnixNano())
}

func (f Fingerprint) Max(o Fingerprint) Fingerprint {
	return max(f, o)
}

// After reports whether f observed a change o had not.
func (f Fingerprint) After(o Fingerprint) bool {
	return f > o
}

func (f Fingerprint) Time() time.Time {
	if f == Minimal {
		return time.Time{}
	}
	return time.Unix(0, int64(f))
}

func (f Fingerprint) String() string {
	if f == Minimal {
		return "none"
	}
	return f.Time().UTC().Format(time.RFC3339Nano)
}

// LastModified returns the latest modification time of names themselves.
// Missing names are ignored.
func LastModified(fsys afero.Fs, names ...string) Fingerprint {
	result := Minimal
	for _, name := range names {
		if name == "" {
			continue
		}
		info, err := fsys.Stat(name)
		if err != nil {
			continue
		}
		result = result.Max(Of(info.ModTime()))
	}
	return result
}

// RecursiveLastModified returns the latest modification time of name
// and, if it is a directory, of everything below it.
// Entries that cannot be read are skipped.
func RecursiveLastModified(fsys afero.Fs, name string) Fingerprint {
	result := Minimal
	if name == "" {
		return result
	}
	_ = afero.Walk(fsys, name, func(_ string, info fs.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		result = result.Max(Of(info.ModTime()))
		return nil
	})
	return result
}

// TreesLastModified is [RecursiveLastModified] over every name.
func TreesLastModified(fsys afero.Fs, names ...string) Fingerprint {
	result := Minimal
	for _, name := range names {
		result = result.Max(RecursiveLastModified(fsys, name))
	}
	return result
}
