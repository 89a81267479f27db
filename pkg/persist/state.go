package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrStateNotFound is returned by LoadState when no state file exists yet.
var ErrStateNotFound = errors.New("state file not found")

// Permissions for state files and their directory.
const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// StatePath returns the file path used for basename under dir with the codec's extension.
func StatePath(dir, basename string, codec Codec) string {
	return filepath.Join(dir, basename+codec.Extension())
}

// SaveState saves the given state to a file in the specified directory.
// The file is written to a temporary sibling and renamed into place, so a
// crash mid-write leaves the previous state intact.
func SaveState(dir, basename string, codec Codec, state any) error {
	mkdirErr := os.MkdirAll(dir, dirPerm)
	if mkdirErr != nil {
		return fmt.Errorf("create state dir: %w", mkdirErr)
	}

	path := StatePath(dir, basename, codec)

	tmp, err := os.CreateTemp(dir, basename+".*.tmp")
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}

	tmpPath := tmp.Name()

	writeErr := writeState(tmp, codec, state)
	if writeErr != nil {
		_ = os.Remove(tmpPath)

		return writeErr
	}

	renameErr := os.Rename(tmpPath, path)
	if renameErr != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("replace state file: %w", renameErr)
	}

	return nil
}

func writeState(file *os.File, codec Codec, state any) error {
	encodeErr := codec.Encode(file, state)
	if encodeErr != nil {
		file.Close()

		return fmt.Errorf("encode state: %w", encodeErr)
	}

	syncErr := file.Sync()
	if syncErr != nil {
		file.Close()

		return fmt.Errorf("sync state file: %w", syncErr)
	}

	chmodErr := file.Chmod(filePerm)
	if chmodErr != nil {
		file.Close()

		return fmt.Errorf("chmod state file: %w", chmodErr)
	}

	closeErr := file.Close()
	if closeErr != nil {
		return fmt.Errorf("close state file: %w", closeErr)
	}

	return nil
}

// LoadState loads state from a file in the specified directory.
// The state parameter must be a pointer to the target struct.
// A missing file yields ErrStateNotFound.
func LoadState(dir, basename string, codec Codec, state any) error {
	file, err := os.Open(StatePath(dir, basename, codec))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %w", ErrStateNotFound, err)
		}

		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	decodeErr := codec.Decode(file, state)
	if decodeErr != nil {
		return fmt.Errorf("decode state: %w", decodeErr)
	}

	return nil
}
