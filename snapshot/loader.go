package snapshot

import (
	"encoding/gob"
	"errors"
	"io/fs"
	"os"
)

// Load reads a snapshot written by Writer. A missing file is not an
// error: it returns nil.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil // snapshot optional
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
