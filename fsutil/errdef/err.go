// Package errdef defines errno-like errors shared by the virtual filesystems.
//
// Each error unwraps to its io/fs counterpart so callers can keep using
// errors.Is(err, fs.ErrPermission) and friends.
package errdef

import "io/fs"

type errTy struct {
	Base    error
	Message string
}

func newErr(base error, msg string) error {
	return &errTy{
		Base:    base,
		Message: msg,
	}
}

func (e *errTy) Error() string {
	return e.Message
}

func (e *errTy) Unwrap() error {
	return e.Base
}

var (
	EROFS   = newErr(fs.ErrPermission, "read-only file system")
	ENOTDIR = newErr(fs.ErrInvalid, "not a directory")
	EISDIR  = newErr(fs.ErrInvalid, "is a directory")
	EBADF   = newErr(fs.ErrClosed, "bad file descriptor")
)
