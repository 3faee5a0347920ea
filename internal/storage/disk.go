package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// Disk keeps tiles in a directory: a manifest.json index and one
// <id>.tile blob per tile.
type Disk struct {
	blobStore
	dir string
}

// NewDisk opens the store rooted at dir. The directory is created on the
// first write.
func NewDisk(dir string) *Disk {
	d := &Disk{dir: dir}
	d.b = dirBlobs(dir)
	return d
}

// Dir returns the store's directory.
func (d *Disk) Dir() string {
	return d.dir
}

type dirBlobs string

func (d dirBlobs) get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(string(d), key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNoBlob
	}
	return data, err
}

// put writes through a temporary file so readers never see half a blob.
func (d dirBlobs) put(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(string(d), 0755); err != nil {
		return err
	}

	path := filepath.Join(string(d), key)
	tmp, err := os.CreateTemp(string(d), "."+key+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
