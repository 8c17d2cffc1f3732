package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrBadPattern = errors.New("bad pattern")
	ErrMaxRetry   = errors.New("max retry")
)

const maxRandomAttempt = 10000

// OpenFileRandom creates a new file in dir whose name is pattern with the last "*"
// replaced by a random number, like [os.CreateTemp] does for the real filesystem.
func OpenFileRandom[FS OpenFileFs[File], File any](fsys FS, dir string, pattern string, perm fs.FileMode) (File, error) {
	if dir == "" {
		dir = "."
	}

	if strings.ContainsAny(pattern, `/\`) {
		return *new(File), fmt.Errorf("%w: %q contains path separators", ErrBadPattern, pattern)
	}

	prefix, suffix := pattern, ""
	if i := strings.LastIndex(pattern, "*"); i >= 0 {
		prefix, suffix = pattern[:i], pattern[i+1:]
	}

	for range maxRandomAttempt {
		name := filepath.Join(dir, prefix+randomUint32Padded()+suffix)
		f, err := fsys.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm.Perm()|0o200)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return *new(File), err
		}
	}
	return *new(File), fmt.Errorf("%w: opening %s", ErrMaxRetry, path.Join(filepath.ToSlash(dir), prefix+"*"+suffix))
}

// randomUint32Padded returns math/rand/v2.Uint32 as a left-0-padded string of 10 digits.
func randomUint32Padded() string {
	s := strconv.FormatUint(uint64(rand.Uint32()), 10)
	return strings.Repeat("0", len("4294967295")-len(s)) + s
}
