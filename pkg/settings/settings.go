// Package settings stores small typed settings objects on disk.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sumatoshi-tech/analysisd/pkg/action"
	"github.com/Sumatoshi-tech/analysisd/pkg/persist"
)

// PendingActionsBasename is the file basename of the pending-actions settings object.
const PendingActionsBasename = "pending-actions"

// PendingActions is the persisted set of actions that were accepted but not completed.
type PendingActions struct {
	Actions []action.Record `json:"actions" yaml:"actions"`
}

// Store loads and saves one settings object of type T.
type Store[T any] interface {
	Load(ctx context.Context) (T, error)
	Save(ctx context.Context, value T) error
}

// FileStore is a Store backed by a single state file.
// Concurrent Save calls are serialized.
type FileStore[T any] struct {
	mu        sync.Mutex
	persister *persist.Persister[T]
}

// NewFileStore creates a store writing basename into dir with the given codec.
func NewFileStore[T any](dir, basename string, codec persist.Codec) *FileStore[T] {
	return &FileStore[T]{persister: persist.NewPersister[T](dir, basename, codec)}
}

// Path returns the location of the backing file.
func (s *FileStore[T]) Path() string {
	return s.persister.Path()
}

// Stat describes the backing file.
func (s *FileStore[T]) Stat() (persist.FileInfo, error) {
	return s.persister.Stat()
}

// Load reads the stored value. A missing file yields the zero value.
func (s *FileStore[T]) Load(ctx context.Context) (T, error) {
	var value T

	err := ctx.Err()
	if err != nil {
		return value, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loadErr := s.persister.Load(func(v *T) { value = *v })
	if loadErr != nil && !errors.Is(loadErr, persist.ErrStateNotFound) {
		return value, fmt.Errorf("load settings: %w", loadErr)
	}

	return value, nil
}

// Save replaces the stored value.
func (s *FileStore[T]) Save(ctx context.Context, value T) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saveErr := s.persister.Save(func() *T { return &value })
	if saveErr != nil {
		return fmt.Errorf("save settings: %w", saveErr)
	}

	return nil
}
