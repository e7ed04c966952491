//go:build !unix

package backlog

import (
	"io"
	"os"
	"path/filepath"
)

// lockDir creates dir/LOCK exclusively. A stale LOCK left by a crash must be
// removed by the operator on these platforms.
func lockDir(dir string) (io.Closer, error) {
	name := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return &removeOnClose{File: f, name: name}, nil
}

type removeOnClose struct {
	*os.File
	name string
}

func (r *removeOnClose) Close() error {
	_ = r.File.Close()
	return os.Remove(r.name)
}
