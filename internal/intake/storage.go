package intake

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for files that are not JPEG or PNG images
var ErrUnsupportedType = errors.New("unsupported image type")

// ErrOutsideStorage is returned when a path does not belong to the managed directory
var ErrOutsideStorage = errors.New("path is outside managed storage")

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Storage copies uploaded images into a managed directory
type Storage interface {
	// Save copies the file at sourcePath and returns the managed path of the copy
	Save(sourcePath string) (string, error)

	// SaveFrom writes r under a new managed name that keeps filename's extension
	SaveFrom(filename string, r io.Reader) (string, error)

	// Open opens a file previously returned by Save or SaveFrom
	Open(managedPath string) (*os.File, error)
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
	newName  func() string
}

// NewLocalStorage creates a new LocalStorage rooted at basePath.
// The directory is created on the first save if it does not exist yet.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{
		basePath: basePath,
		newName:  func() string { return uuid.New().String() },
	}
}

// Dir returns the managed directory
func (l *LocalStorage) Dir() string {
	return l.basePath
}

// Save copies sourcePath into the managed directory. The source is left untouched.
func (l *LocalStorage) Save(sourcePath string) (string, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("opening source image: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("reading source image: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("reading source image: %s is a directory", sourcePath)
	}

	return l.SaveFrom(filepath.Base(sourcePath), src)
}

// SaveFrom copies r into the managed directory under a generated name
func (l *LocalStorage) SaveFrom(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(filename))
	}

	if err := os.MkdirAll(l.basePath, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory: %w", err)
	}

	// keep the extension as the user had it, only the base name is generated
	path := filepath.Join(l.basePath, l.newName()+filepath.Ext(filename))
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("creating managed file: %w", err)
	}

	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("copying image: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing image: %w", err)
	}

	return path, nil
}

// Open opens a managed file for reading
func (l *LocalStorage) Open(managedPath string) (*os.File, error) {
	if !l.contains(managedPath) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideStorage, managedPath)
	}
	f, err := os.Open(managedPath)
	if err != nil {
		return nil, fmt.Errorf("opening managed file: %w", err)
	}
	return f, nil
}

func (l *LocalStorage) contains(path string) bool {
	base, err := filepath.Abs(l.basePath)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}
