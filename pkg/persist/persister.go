package persist

import (
	"fmt"
	"os"
	"time"
)

// Persister handles I/O for a specific state type using a Codec.
type Persister[T any] struct {
	dir      string
	basename string
	codec    Codec
}

// NewPersister creates a persister writing basename (plus the codec extension) into dir.
func NewPersister[T any](dir, basename string, codec Codec) *Persister[T] {
	return &Persister[T]{
		dir:      dir,
		basename: basename,
		codec:    codec,
	}
}

// Path returns the full path of the state file.
func (p *Persister[T]) Path() string {
	return StatePath(p.dir, p.basename, p.codec)
}

// Save writes the state returned by buildState.
func (p *Persister[T]) Save(buildState func() *T) error {
	return SaveState(p.dir, p.basename, p.codec, buildState())
}

// Load restores state and hands it to restoreState.
func (p *Persister[T]) Load(restoreState func(*T)) error {
	var state T

	err := LoadState(p.dir, p.basename, p.codec, &state)
	if err != nil {
		return err
	}

	restoreState(&state)

	return nil
}

// FileInfo describes the state file on disk.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Stat returns size and modification time of the state file.
func (p *Persister[T]) Stat() (FileInfo, error) {
	path := p.Path()

	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat state file: %w", err)
	}

	return FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil
}
