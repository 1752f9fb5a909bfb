// Package labelstore keeps decoded shipping label images on disk.
package labelstore

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/tournevent/upsbridge/pkg/shipper"
)

const namePrefix = "shipping_label_"

var (
	// ErrNotFound is returned by Open for a name that was never saved.
	ErrNotFound = errors.New("label not found")

	// ErrInvalidName is returned for names that are not plain label file names.
	ErrInvalidName = errors.New("invalid label name")
)

// Store writes label files into a single directory.
type Store struct {
	fs    afero.Fs
	dir   string
	newID func() string
}

// New returns a Store rooted at dir on fsys.
func New(fsys afero.Fs, dir string) *Store {
	return &Store{
		fs:    fsys,
		dir:   dir,
		newID: uuid.NewString,
	}
}

// NewOS returns a Store on the local filesystem.
func NewOS(dir string) *Store {
	return New(afero.NewOsFs(), dir)
}

// Dir returns the directory labels are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes data under a new unique name and returns that name.
func (s *Store) Save(format shipper.LabelFormat, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty label image")
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating label directory: %w", err)
	}

	name := namePrefix + s.newID() + "." + format.Extension()
	if err := afero.WriteFile(s.fs, filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("writing label %s: %w", name, err)
	}
	return name, nil
}

// Open opens a previously saved label. The caller closes the file.
func (s *Store) Open(name string) (afero.File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	f, err := s.fs.Open(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("opening label %s: %w", name, err)
	}
	return f, nil
}

// Read returns the bytes of a previously saved label.
func (s *Store) Read(name string) ([]byte, error) {
	f, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return afero.ReadAll(f)
}

func validName(name string) error {
	if !strings.HasPrefix(name, namePrefix) || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
