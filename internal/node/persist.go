package node

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Persister records a reading locally.
type Persister interface {
	Persist(path string, r Reading) error
}

// FilePersister overwrites path with the reading as JSON. The write goes
// through a temporary file so a power cut never leaves half a document.
type FilePersister struct{}

// Persist implements Persister.
func (FilePersister) Persist(path string, r Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrPersistence, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrPersistence, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// Ensure FilePersister implements Persister.
var _ Persister = FilePersister{}
