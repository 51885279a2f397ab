package fs

import "io"

// File is a writable file handle.
type File interface {
	io.WriteCloser
	Sync() error
}

// ReadFile is a random-access read-only file handle.
type ReadFile interface {
	// Size reports the current length of the file in bytes.
	Size() int
	// ReadAt reads length bytes starting at offset. A short read is an
	// error; callers are expected to stay in-bounds.
	ReadAt(offset int, length int) ([]byte, error)
	Close() error
}

// Filesys exposes a single directory of files.
//
// The engine keeps every SST directly in this directory, so the API has no
// notion of sub-directories or paths; fname is always a bare file name.
type Filesys interface {
	Open(fname string) (ReadFile, error)
	Create(fname string) (File, error)
	List() ([]string, error)
	Delete(fname string) error
}

// DeleteAll removes every file in the filesystem.
func DeleteAll(fsys Filesys) error {
	names, err := fsys.List()
	if err != nil {
		return err
	}
	for _, n := range names {
		if err := fsys.Delete(n); err != nil {
			return err
		}
	}
	return nil
}
