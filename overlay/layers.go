package overlay

import (
	"cmp"
	"fmt"
	"io/fs"
	"maps"
	"slices"

	"github.com/ngicks/go-common/serr"
	"github.com/ngicks/go-devrun/fsutil"
	"github.com/ngicks/go-devrun/fsutil/errdef"
)

// Layers is an ordered layer set. Priority increases with the index:
// for any path the last layer containing it wins.
type Layers []Layer

// doInUpperLayer runs operation from the highest priority layer down
// and returns the first success. Layers reporting the path missing are skipped.
func doInUpperLayer[V any](ll Layers, operation func(l Layer) (V, error)) (idx int, v V, err error) {
	for i, l := range slices.Backward(ll) {
		v, err = operation(l)
		if err == nil {
			return i, v, nil
		}
		if !fsutil.IsMissing(err) {
			return -1, *new(V), err
		}
	}
	return -1, *new(V), fs.ErrNotExist
}

func (ll Layers) stat(name string) (int, fs.FileInfo, error) {
	return doInUpperLayer(ll, func(l Layer) (fs.FileInfo, error) {
		return l.stat(name)
	})
}

// readDir merges the listings of every layer exposing name as a directory,
// walking down from the highest priority layer.
// A layer having name as a non-directory ends the walk, hiding everything below it.
// The entry of the highest priority layer wins for each child name.
func (ll Layers) readDir(name string) ([]fs.DirEntry, error) {
	var (
		merged = make(map[string]fs.DirEntry)
		found  bool
	)
	for _, l := range slices.Backward(ll) {
		dirents, err := l.readDir(name)
		if err != nil {
			if err == errdef.ENOTDIR {
				if found {
					break
				}
				return nil, errdef.ENOTDIR
			}
			if fsutil.IsMissing(err) {
				continue
			}
			return nil, err
		}
		found = true
		for _, dirent := range dirents {
			if _, ok := merged[dirent.Name()]; !ok {
				merged[dirent.Name()] = dirent
			}
		}
	}
	if !found {
		return nil, fs.ErrNotExist
	}
	return slices.SortedFunc(
		maps.Values(merged),
		func(i, j fs.DirEntry) int {
			return cmp.Compare(i.Name(), j.Name())
		},
	), nil
}

func (ll Layers) close() error {
	errs := make([]serr.PrefixErr, len(ll))
	for i, l := range ll {
		errs[i] = serr.PrefixErr{
			P: fmt.Sprintf("layer %d (%s): ", i, l.Descriptor()),
			E: l.src.Close(),
		}
	}
	return serr.GatherPrefixed(errs)
}

// Descriptors returns the descriptor of each layer in priority order.
func (ll Layers) Descriptors() []string {
	out := make([]string, len(ll))
	for i, l := range ll {
		out[i] = l.Descriptor()
	}
	return out
}
