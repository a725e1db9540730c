package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidFileName indicates the uploaded file had no usable name.
	ErrInvalidFileName = errors.New("storage: file name required")

	errMissingDirectory = errors.New("storage: directory required")
)

// StoredFile is the stable reference returned for persisted bytes.
type StoredFile struct {
	Path string
	Name string
	Size int64
}

// NameProvider issues unique prefixes for stored file names.
type NameProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a NameProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() NameProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// FileStore persists uploaded bytes under a single directory.
// The catalog never touches file bytes except through this type.
type FileStore struct {
	dir   string
	names NameProvider
}

// NewFileStore ensures the directory exists and returns a store rooted at it.
func NewFileStore(dir string, names NameProvider) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errMissingDirectory
	}
	if names == nil {
		names = NewUUIDProvider()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating directory: %w", err)
	}
	return &FileStore{dir: dir, names: names}, nil
}

// Save persists the reader's bytes under a unique name and returns the reference.
// On any write failure the partial file is removed so no orphan bytes remain.
func (s *FileStore) Save(reader io.Reader, originalName string) (StoredFile, error) {
	baseName := filepath.Base(strings.TrimSpace(originalName))
	if baseName == "" || baseName == "." || baseName == string(filepath.Separator) {
		return StoredFile{}, ErrInvalidFileName
	}

	prefix, err := s.names.NewID()
	if err != nil {
		return StoredFile{}, fmt.Errorf("storage: generating file name: %w", err)
	}
	path := filepath.Join(s.dir, prefix+"_"+baseName)

	target, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return StoredFile{}, fmt.Errorf("storage: creating file: %w", err)
	}

	written, err := io.Copy(target, reader)
	closeErr := target.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return StoredFile{}, fmt.Errorf("storage: writing file: %w", err)
	}

	return StoredFile{Path: path, Name: baseName, Size: written}, nil
}

// Open streams back the bytes behind a stored reference.
func (s *FileStore) Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: opening file: %w", err)
	}
	return file, nil
}

// Remove deletes the bytes behind a stored reference. A missing file is not an error.
func (s *FileStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: removing file: %w", err)
	}
	return nil
}
