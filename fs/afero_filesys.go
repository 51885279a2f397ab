package fs

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/afero"
)

type aferoFs struct {
	fs afero.Afero
}

type readFile struct {
	f afero.File
}

func (f readFile) Size() int {
	st, err := f.f.Stat()
	if err != nil {
		panic(err)
	}
	return int(st.Size())
}

func (f readFile) ReadAt(offset int, length int) ([]byte, error) {
	p := make([]byte, length)
	n, err := f.f.ReadAt(p, int64(offset))
	if err != nil {
		return nil, err
	}
	if n != length {
		return nil, fmt.Errorf("short ReadAt(%d, %d) -> %d bytes for %s",
			offset, length, n, f.f.Name())
	}
	return p, nil
}

func (f readFile) Close() error {
	return f.f.Close()
}

func abs(fname string) string {
	return "/" + fname
}

func (fsys aferoFs) Open(fname string) (ReadFile, error) {
	f, err := fsys.fs.Open(abs(fname))
	if err != nil {
		return nil, err
	}
	return readFile{f}, nil
}

func (fsys aferoFs) Create(fname string) (File, error) {
	return fsys.fs.Create(abs(fname))
}

func (fsys aferoFs) List() ([]string, error) {
	matches, err := afero.Glob(fsys.fs, abs("*"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, path.Base(m))
	}
	return names, nil
}

func (fsys aferoFs) Delete(fname string) error {
	return fsys.fs.Remove(abs(fname))
}

// FromAfero wraps any afero file system as a Filesys.
//
// File names are interpreted as absolute paths; use afero.NewBasePathFs to
// confine the database to a directory.
func FromAfero(afs afero.Fs) Filesys {
	return aferoFs{fs: afero.Afero{Fs: afs}}
}

// MemFs creates an in-memory Filesys, for tests.
func MemFs() Filesys {
	return FromAfero(afero.NewMemMapFs())
}

// DirFs creates a Filesys backed by the OS rooted at basedir, creating the
// directory if it does not exist.
func DirFs(basedir string) (Filesys, error) {
	osFs := afero.NewOsFs()
	ok, err := afero.DirExists(osFs, basedir)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := osFs.MkdirAll(basedir, os.FileMode(0755)); err != nil {
			return nil, err
		}
	}
	return FromAfero(afero.NewBasePathFs(osFs, basedir)), nil
}
