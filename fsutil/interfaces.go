// Package fsutil defines filesystem abstraction library agnostic helpers.
//
// Helpers are generic over small capability interfaces, so they work with
// afero.Fs, the virtual overlay and anything in between.
package fsutil

import "io/fs"

type ChmodFs interface {
	Chmod(name string, mode fs.FileMode) error
}

type MkdirFs interface {
	Mkdir(name string, perm fs.FileMode) error
}

type MkdirAllFs interface {
	MkdirAll(name string, perm fs.FileMode) error
}

type OpenFileFs[File any] interface {
	OpenFile(name string, flag int, perm fs.FileMode) (File, error)
}

type RemoveFs interface {
	Remove(name string) error
}

type RenameFs interface {
	Rename(oldname string, newname string) error
}

type StatFs interface {
	Stat(name string) (fs.FileInfo, error)
}

type CloseFile interface {
	Close() error
}

type NameFile interface {
	Name() string
}

type SyncFile interface {
	Sync() error
}

type WriteFile interface {
	Write(b []byte) (n int, err error)
}
