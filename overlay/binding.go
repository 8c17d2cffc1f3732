package overlay

import (
	"errors"
	"sync"
)

var (
	ErrNotInstalled     = errors.New("no overlay installed")
	ErrAlreadyInstalled = errors.New("an overlay is already installed")
)

// Binding is the slot through which a consumer, e.g. a script runtime,
// reaches the overlay it was handed. Nothing is reachable through it
// outside of an InstallIn / remove pair.
type Binding struct {
	mu   sync.Mutex
	fsys *Fs
	gen  uint64
}

// InstallIn makes fsys reachable through b until remove is called.
// remove is idempotent and only ever uninstalls what this call installed.
func (fsys *Fs) InstallIn(b *Binding) (remove func(), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fsys != nil {
		return func() {}, ErrAlreadyInstalled
	}
	b.fsys = fsys
	b.gen++
	gen := b.gen
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.gen == gen && b.fsys != nil {
			b.fsys = nil
		}
	}, nil
}

// Fs returns the installed overlay.
func (b *Binding) Fs() (*Fs, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fsys == nil {
		return nil, ErrNotInstalled
	}
	return b.fsys, nil
}

// Installed reports whether an overlay is currently reachable through b.
func (b *Binding) Installed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fsys != nil
}
