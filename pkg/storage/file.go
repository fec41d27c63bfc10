package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"nonce-core/pkg/errno"

	"github.com/spf13/afero"
)

// StorePath is the location of the JSON document backing a FileStore.
type StorePath string

// FileStore keeps every entry in a single JSON object on disk.
//
// Each call re-reads and (for writes) rewrites the whole document. There is
// no locking: two processes calling Set concurrently can lose an update,
// the last writer wins.
type FileStore struct {
	fs   afero.Fs
	path StorePath
}

// NewFileStore returns a store backed by the OS filesystem.
func NewFileStore(path StorePath) *FileStore {
	return NewFileStoreFs(afero.NewOsFs(), path)
}

// NewFileStoreFs returns a store on an arbitrary afero filesystem.
func NewFileStoreFs(fsys afero.Fs, path StorePath) *FileStore {
	return &FileStore{fs: fsys, path: path}
}

func (s *FileStore) Lookup(_ context.Context, key string) (string, error) {
	entries, err := s.read()
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	value, ok := entries[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	entries, err := s.readForUpdate()
	if err != nil {
		return err
	}
	entries[key] = value
	return s.write(entries)
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	entries, err := s.readForUpdate()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return s.write(entries)
}

func (s *FileStore) read() (map[string]string, error) {
	data, err := afero.ReadFile(s.fs, string(s.path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read %s: %w", errno.ErrStoreIO, s.path, err)
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &CorruptError{Location: string(s.path), Err: err}
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	return entries, nil
}

// readForUpdate starts from an empty document when the file is missing or
// unparsable; any other read failure aborts the write.
func (s *FileStore) readForUpdate() (map[string]string, error) {
	entries, err := s.read()
	var corrupt *CorruptError
	switch {
	case err == nil:
		return entries, nil
	case errors.Is(err, fs.ErrNotExist), errors.As(err, &corrupt):
		return make(map[string]string), nil
	default:
		return nil, err
	}
}

func (s *FileStore) write(entries map[string]string) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", errno.ErrStoreIO, err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(string(s.path)), 0o700); err != nil {
		return fmt.Errorf("%w: mkdir for %s: %w", errno.ErrStoreIO, s.path, err)
	}
	if err := afero.WriteFile(s.fs, string(s.path), data, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %w", errno.ErrStoreIO, s.path, err)
	}
	return nil
}
