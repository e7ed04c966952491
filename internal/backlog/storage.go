package backlog

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

// Storage is the file-system surface the backlog needs. OSStorage is the
// default; hosts may supply their own (e.g. to route through a storage driver
// or to inject faults in tests).
type Storage interface {
	MkdirAll(dir string) error
	// List returns the base names of the entries in dir.
	List(dir string) ([]string, error)
	// Size returns the byte length of the named file.
	Size(name string) (int64, error)
	// Create creates or truncates name for writing.
	Create(name string) (WriteFile, error)
	// OpenAppend opens an existing file for sequential appends.
	OpenAppend(name string) (WriteFile, error)
	OpenRead(name string) (ReadFile, error)
	// OpenReadWrite opens name for positional reads and writes, creating it if needed.
	OpenReadWrite(name string) (ReadWriteFile, error)
	// Truncate shortens name to size and syncs it.
	Truncate(name string, size int64) error
	Rename(oldname, newname string) error
	Remove(name string) error
	// SyncDir makes prior creates, renames and removes in dir durable.
	SyncDir(dir string) error
}

// WriteFile is an append-only handle.
type WriteFile interface {
	io.Writer
	Sync() error
	Close() error
}

// ReadFile is a positional read handle.
type ReadFile interface {
	io.ReaderAt
	Close() error
}

// ReadWriteFile is a positional read/write handle.
type ReadWriteFile interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
}

// OSStorage implements Storage on the local file system.
type OSStorage struct{}

func (OSStorage) MkdirAll(dir string) error { return os.MkdirAll(dir, 0o755) }

func (OSStorage) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (OSStorage) Size(name string) (int64, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (OSStorage) Create(name string) (WriteFile, error) {
	return os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
}

func (OSStorage) OpenAppend(name string) (WriteFile, error) {
	return os.OpenFile(name, os.O_WRONLY|os.O_APPEND, 0o644)
}

func (OSStorage) OpenRead(name string) (ReadFile, error) { return os.Open(name) }

func (OSStorage) OpenReadWrite(name string) (ReadWriteFile, error) {
	return os.OpenFile(name, os.O_CREATE|os.O_RDWR, 0o644)
}

func (OSStorage) Truncate(name string, size int64) error {
	f, err := os.OpenFile(name, os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (OSStorage) Rename(oldname, newname string) error { return os.Rename(oldname, newname) }

func (OSStorage) Remove(name string) error {
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (OSStorage) SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// readFull reads len(p) bytes at off, mapping a short read to io.ErrUnexpectedEOF.
func readFull(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
