package fsutil

import (
	"errors"
	"io/fs"
	"syscall"

	"github.com/ngicks/go-devrun/fsutil/errdef"
)

// WrapPathErr wraps error into [*fs.PathError].
//
// If err is nil, WrapPathErr also returns nil.
//
// If err is already a PathError, each field of PathError is overwritten
// by non zero op and/or path.
func WrapPathErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && pathErr == err {
		if op != "" {
			pathErr.Op = op
		}
		if path != "" {
			pathErr.Path = path
		}
		return err
	}
	return &fs.PathError{Op: op, Path: path, Err: err}
}

// IsMissing reports whether err means the path is simply not there,
// either because it does not exist or because a path component is a file.
func IsMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, errdef.ENOTDIR) ||
		errors.Is(err, syscall.ENOTDIR)
}
