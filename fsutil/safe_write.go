package fsutil

import (
	"io"
	"io/fs"
	"path/filepath"

	"github.com/ngicks/go-devrun/fsutil/internal/bufpool"
)

type safeWriteFile interface {
	WriteFile
	CloseFile
	NameFile
	SyncFile
}

type safeWriteFsys[File safeWriteFile] interface {
	OpenFileFs[File]
	MkdirAllFs
	RenameFs
	RemoveFs
}

// SafeWrite writes r to name through a random temporary file in the same directory,
// then renames it over name. Readers never observe a partially written file.
// Missing parent directories are created.
func SafeWrite[File safeWriteFile](fsys safeWriteFsys[File], name string, r io.Reader, perm fs.FileMode) (err error) {
	name = filepath.Clean(name)
	dir := filepath.Dir(name)

	if err = fsys.MkdirAll(dir, fs.ModePerm); err != nil {
		return WrapPathErr("safewrite", name, err)
	}

	tmp, err := OpenFileRandom[safeWriteFsys[File], File](fsys, dir, "."+filepath.Base(name)+".*.tmp", perm.Perm())
	if err != nil {
		return WrapPathErr("safewrite", name, err)
	}

	tmpName := filepath.Join(dir, filepath.Base(tmp.Name()))
	defer func() {
		_ = tmp.Close()
		if err != nil {
			_ = fsys.Remove(tmpName)
		}
	}()

	bufP := bufpool.GetBytes()
	defer bufpool.PutBytes(bufP)

	if _, err = io.CopyBuffer(tmp, r, *bufP); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	// some platforms refuse renaming an open file.
	if err = tmp.Close(); err != nil {
		return err
	}
	return fsys.Rename(tmpName, name)
}
