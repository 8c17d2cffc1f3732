package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	pathpkg "path"
	"path/filepath"

	"github.com/ngicks/go-devrun/fsutil/internal/bufpool"
)

type copyFsFile interface {
	WriteFile
	CloseFile
}

type copyFsFsys[File copyFsFile] interface {
	OpenFileFs[File]
	MkdirFs
	ChmodFs
	StatFs
}

// CopyFsOption configures filesystem copy operations.
type CopyFsOption[Fsys copyFsFsys[File], File copyFsFile] struct {
	// ChmodMask is used to mask file permissions during chmod operations.
	// If zero, [fs.ModePerm] is used as the default mask.
	ChmodMask fs.FileMode
	// OnlyNewer skips regular files whose destination has the same size
	// and a modification time not older than the source.
	OnlyNewer bool
	// Skip, if non nil, is consulted for every walked entry.
	// Returning true for a directory skips the whole subtree.
	Skip func(path string, d fs.DirEntry) bool
}

func (opt CopyFsOption[Fsys, File]) maskPerm(perm fs.FileMode) fs.FileMode {
	mask := opt.ChmodMask
	if mask == 0 {
		mask = fs.ModePerm
	}
	return perm & mask
}

// CopyAll performs recursive copy from src filesystem to dst filesystem under the specified root path.
// It returns the number of regular files written.
func (opt CopyFsOption[Fsys, File]) CopyAll(dst Fsys, src fs.FS, root string) (int, error) {
	var copied int
	err := fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if opt.Skip != nil && path != "." && opt.Skip(path, d) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		dstPath := filepath.FromSlash(pathpkg.Join(root, path))
		wrote, err := opt.copyEntry(dst, src, dstPath, path, info)
		if wrote {
			copied++
		}
		return err
	})
	return copied, err
}

func (opt CopyFsOption[Fsys, File]) copyEntry(dst Fsys, src fs.FS, dstPath, srcPath string, info fs.FileInfo) (bool, error) {
	perm := opt.maskPerm(info.Mode())

	switch {
	case info.IsDir():
		err := dst.Mkdir(dstPath, fs.ModePerm)
		if err != nil && !errors.Is(err, fs.ErrExist) {
			return false, err
		}
		return false, dst.Chmod(dstPath, perm)
	case info.Mode().IsRegular():
		if opt.OnlyNewer {
			dstInfo, err := dst.Stat(dstPath)
			if err == nil &&
				dstInfo.Mode().IsRegular() &&
				dstInfo.Size() == info.Size() &&
				!dstInfo.ModTime().Before(info.ModTime()) {
				return false, nil
			}
		}

		srcFile, err := src.Open(srcPath)
		if err != nil {
			return false, err
		}
		defer srcFile.Close()

		dstFile, err := dst.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
		if err != nil {
			return false, err
		}
		defer dstFile.Close()

		bufP := bufpool.GetBytes()
		defer bufpool.PutBytes(bufP)

		if _, err = io.CopyBuffer(dstFile, srcFile, *bufP); err != nil {
			return false, err
		}
		return true, dstFile.Close()
	default:
		// symlinks, devices, pipes and so on are not carried over.
		return false, nil
	}
}
