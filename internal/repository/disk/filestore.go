// Package disk stores gallery files on the local file system, one
// directory per gallery.
package disk

import (
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/msomdec/gallery-manager/internal/domain"
)

// MaxNameAttempts bounds GenerateUniqueName.
const MaxNameAttempts = 1000

// FileStore implements domain.FileStore rooted at a base directory and
// published under a base URL.
type FileStore struct {
	dir     string
	baseURL string
	newName func() string
}

// NewFileStore creates a FileStore. baseURL is used without a trailing slash.
func NewFileStore(dir, baseURL string) *FileStore {
	return &FileStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		newName: func() string { return uuid.NewString() },
	}
}

// PathFor returns base/<galleryKey>/<filename>.
func (s *FileStore) PathFor(galleryKey, filename string) string {
	return filepath.Join(s.dir, galleryKey, filename)
}

// checkKey rejects gallery keys that are not a single local path element.
func checkKey(galleryKey string) error {
	if galleryKey == "." || !filepath.IsLocal(galleryKey) || strings.ContainsAny(galleryKey, `/\`) {
		return fmt.Errorf("%w: gallery key %q", domain.ErrInvalidInput, galleryKey)
	}
	return nil
}

// checkPath rejects paths outside the base directory.
func (s *FileStore) checkPath(path string) error {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || !filepath.IsLocal(rel) {
		return fmt.Errorf("%w: path %q is outside the gallery directory", domain.ErrInvalidInput, path)
	}
	return nil
}

func (s *FileStore) EnsureDirectory(galleryKey string) (string, error) {
	if err := checkKey(galleryKey); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, galleryKey)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("%w: create gallery directory: %v", domain.ErrStorageIO, err)
	}
	return path, nil
}

// GenerateUniqueName returns "<token>.<ext>" that does not exist in the
// gallery directory at call time. Existence is checked on disk on every
// attempt, never against a cached listing.
func (s *FileStore) GenerateUniqueName(galleryKey, ext string) (string, error) {
	if err := checkKey(galleryKey); err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(ext, ".")
	for range MaxNameAttempts {
		name := s.newName()
		if ext != "" {
			name += "." + ext
		}
		_, err := os.Stat(s.PathFor(galleryKey, name))
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: stat candidate name: %v", domain.ErrStorageIO, err)
		}
	}
	return "", domain.ErrNameExhausted
}

// Write creates path exclusively and copies r into it. If path already
// exists the returned error wraps fs.ErrExist and the existing file is left
// untouched.
func (s *FileStore) Write(path string, r io.Reader) error {
	if err := s.checkPath(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %w", domain.ErrStorageIO, err)
		}
		return fmt.Errorf("%w: create file: %v", domain.ErrStorageIO, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: write file: %v", domain.ErrStorageIO, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: sync file: %v", domain.ErrStorageIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: close file: %v", domain.ErrStorageIO, err)
	}
	return nil
}

// Remove deletes path. Failures are logged, never returned.
func (s *FileStore) Remove(path string) {
	if err := s.checkPath(path); err != nil {
		slog.Warn("remove gallery file", "path", path, "error", err)
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("remove gallery file", "path", path, "error", err)
	}
}

// RemoveDirectory deletes the gallery directory if it is empty.
func (s *FileStore) RemoveDirectory(galleryKey string) {
	if err := checkKey(galleryKey); err != nil {
		slog.Warn("remove gallery directory", "gallery", galleryKey, "error", err)
		return
	}
	path := filepath.Join(s.dir, galleryKey)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("remove gallery directory", "path", path, "error", err)
	}
}

// PublicURL returns url/<galleryKey>/<filename>, or false when the file is
// missing on disk right now.
func (s *FileStore) PublicURL(galleryKey, filename string) (string, bool) {
	if filename == "" || checkKey(galleryKey) != nil {
		return "", false
	}
	info, err := os.Stat(s.PathFor(galleryKey, filename))
	if err != nil || info.IsDir() {
		return "", false
	}
	return s.baseURL + "/" + galleryKey + "/" + filename, true
}

// Rotate turns the image at path clockwise by degrees, a multiple of 90,
// and replaces the file in its own format.
func (s *FileStore) Rotate(path string, degrees int) error {
	if degrees%90 != 0 {
		return fmt.Errorf("%w: rotation of %d degrees", domain.ErrInvalidInput, degrees)
	}
	if err := s.checkPath(path); err != nil {
		return err
	}

	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
	}

	src, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open image: %v", domain.ErrStorageIO, err)
	}

	// imaging rotates counter-clockwise.
	var img *image.NRGBA
	switch ((degrees % 360) + 360) % 360 {
	case 90:
		img = imaging.Rotate270(src)
	case 180:
		img = imaging.Rotate180(src)
	case 270:
		img = imaging.Rotate90(src)
	default:
		img = imaging.Clone(src)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".rotate-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", domain.ErrStorageIO, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod temp file: %v", domain.ErrStorageIO, err)
	}

	if err := imaging.Encode(tmp, img, format); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: encode image: %v", domain.ErrStorageIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", domain.ErrStorageIO, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: replace image: %v", domain.ErrStorageIO, err)
	}
	return nil
}
