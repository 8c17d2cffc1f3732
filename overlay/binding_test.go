package overlay

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

func TestBinding(t *testing.T) {
	var b Binding
	_, err := b.Fs()
	assert.Assert(t, errors.Is(err, ErrNotInstalled))

	first := New()
	remove, err := first.InstallIn(&b)
	assert.NilError(t, err)
	got, err := b.Fs()
	assert.NilError(t, err)
	assert.Assert(t, got == first)

	_, err = New().InstallIn(&b)
	assert.Assert(t, errors.Is(err, ErrAlreadyInstalled))

	remove()
	assert.Assert(t, !b.Installed())
	remove()

	second := New()
	removeSecond, err := second.InstallIn(&b)
	assert.NilError(t, err)
	// a stale remove must not uninstall a later installation.
	remove()
	assert.Assert(t, b.Installed())
	removeSecond()
	assert.Assert(t, !b.Installed())
}
