package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/msomdec/gallery-manager/internal/domain"
	"github.com/msomdec/gallery-manager/internal/lock"
)

// writeAttempts bounds how often AddImage picks a new name after losing a
// race for a generated one.
const writeAttempts = 5

// rotateDegrees is the clockwise turn applied by RotateImage.
const rotateDegrees = 90

// GalleryService manages the galleries of one owner model: image metadata,
// the files on disk and the owner's cached first image.
type GalleryService struct {
	gallery domain.GalleryType
	images  domain.GalleryImageRepository
	files   domain.FileStore
	owners  domain.OwnerRepository
	keys    KeyResolver
	locker  lock.Locker
	now     func() time.Time
}

// GalleryOption configures a GalleryService.
type GalleryOption func(*GalleryService)

// WithLocker serializes mutating operations per gallery. Without it,
// concurrent callers of the same gallery must coordinate themselves.
func WithLocker(l lock.Locker) GalleryOption {
	return func(s *GalleryService) { s.locker = l }
}

// WithClock overrides the time source of the cache-busting timestamp.
func WithClock(now func() time.Time) GalleryOption {
	return func(s *GalleryService) { s.now = now }
}

// NewGalleryService creates a new GalleryService.
func NewGalleryService(gallery domain.GalleryType, images domain.GalleryImageRepository, files domain.FileStore,
	owners domain.OwnerRepository, keys KeyResolver, opts ...GalleryOption) *GalleryService {
	s := &GalleryService{
		gallery: gallery,
		images:  images,
		files:   files,
		owners:  owners,
		keys:    keys,
		locker:  lock.Noop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Type returns the gallery configuration.
func (s *GalleryService) Type() domain.GalleryType {
	return s.gallery
}

// GalleryKey returns the key owner's images are stored under.
func (s *GalleryService) GalleryKey(owner domain.PrimaryKey) string {
	return s.keys.Resolve(owner)
}

// OwnerKey parses a gallery key received from a client into the owner's
// primary key.
func (s *GalleryService) OwnerKey(galleryKey string) (domain.PrimaryKey, error) {
	return s.keys.Split(galleryKey, s.gallery.PKColumns)
}

// CheckOwner returns domain.ErrNotFound unless the owner row exists. Types
// without an owner table accept any key.
func (s *GalleryService) CheckOwner(ctx context.Context, owner domain.PrimaryKey) error {
	if s.gallery.OwnerTable == "" {
		return nil
	}
	if err := s.owners.Exists(ctx, s.gallery.OwnerTable, owner); err != nil {
		return fmt.Errorf("find owner: %w", err)
	}
	return nil
}

// Images returns the owner's images in display order.
func (s *GalleryService) Images(ctx context.Context, owner domain.PrimaryKey) ([]domain.GalleryImage, error) {
	images, err := s.images.List(ctx, s.gallery.Name, s.keys.Resolve(owner))
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

// Image returns the owner's cover image, or domain.ErrNotFound.
func (s *GalleryService) Image(ctx context.Context, owner domain.PrimaryKey) (*domain.GalleryImage, error) {
	return s.images.First(ctx, s.gallery.Name, s.keys.Resolve(owner))
}

// URL returns the public URL of img, or false if its file is missing.
func (s *GalleryService) URL(img domain.GalleryImage) (string, bool) {
	return s.files.PublicURL(img.OwnerID, img.Src)
}

// FilePath returns where img is stored on disk.
func (s *GalleryService) FilePath(img domain.GalleryImage) string {
	return s.files.PathFor(img.OwnerID, img.Src)
}

func (s *GalleryService) lock(ctx context.Context, galleryKey string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, s.gallery.Name+"/"+galleryKey)
	if err != nil {
		return nil, fmt.Errorf("lock gallery: %w", err)
	}
	return unlock, nil
}

// AddImage stores upload as the newest image of owner's gallery.
//
// The metadata row is reserved as pending first, the file is written under a
// fresh name, and only then is the row completed with src and sort = id.
// Any failure after the reservation deletes the pending row again.
//
// A failed owner sync is reported as an error wrapping domain.ErrOwnerSync
// alongside the stored image.
func (s *GalleryService) AddImage(ctx context.Context, owner domain.PrimaryKey, upload domain.Upload) (*domain.GalleryImage, error) {
	if len(owner) == 0 {
		return nil, fmt.Errorf("%w: empty owner key", domain.ErrInvalidInput)
	}
	if upload.Body == nil {
		return nil, fmt.Errorf("%w: upload has no body", domain.ErrInvalidInput)
	}
	key := s.keys.Resolve(owner)

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	id, err := s.images.Insert(ctx, s.gallery.Name, key)
	if err != nil {
		return nil, fmt.Errorf("reserve image: %w", err)
	}

	src, err := s.storeFile(key, upload)
	if err != nil {
		s.discard(ctx, id)
		return nil, err
	}

	if err := s.images.Complete(ctx, id, src, id); err != nil {
		s.files.Remove(s.files.PathFor(key, src))
		s.discard(ctx, id)
		return nil, fmt.Errorf("complete image: %w", err)
	}

	img := &domain.GalleryImage{
		ID:      id,
		Type:    s.gallery.Name,
		OwnerID: key,
		Src:     src,
		Sort:    id,
	}
	slog.Debug("gallery image added", "type", s.gallery.Name, "gallery", key, "id", id, "src", src)

	return img, s.RecomputeFirstSrc(ctx, owner)
}

// storeFile writes the upload under a name that is free in the gallery
// directory and returns that name.
func (s *GalleryService) storeFile(key string, upload domain.Upload) (string, error) {
	if _, err := s.files.EnsureDirectory(key); err != nil {
		return "", err
	}

	for range writeAttempts {
		name, err := s.files.GenerateUniqueName(key, upload.Extension)
		if err != nil {
			return "", fmt.Errorf("generate file name: %w", err)
		}

		err = s.files.Write(s.files.PathFor(key, name), upload.Body)
		if errors.Is(err, fs.ErrExist) {
			// Another writer took the name between the check and the create.
			continue
		}
		if err != nil {
			return "", fmt.Errorf("write file: %w", err)
		}
		return name, nil
	}
	return "", domain.ErrNameExhausted
}

// discard drops a pending row after a failed upload.
func (s *GalleryService) discard(ctx context.Context, id int64) {
	if err := s.images.Delete(context.WithoutCancel(ctx), id); err != nil {
		slog.Warn("discard pending gallery image", "id", id, "error", err)
	}
}

// DeleteImage removes one image of owner's gallery, file first.
func (s *GalleryService) DeleteImage(ctx context.Context, owner domain.PrimaryKey, id int64) error {
	key := s.keys.Resolve(owner)

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	img, err := s.images.Find(ctx, s.gallery.Name, key, id)
	if err != nil {
		return fmt.Errorf("find image: %w", err)
	}

	s.files.Remove(s.files.PathFor(key, img.Src))
	if err := s.images.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}

	return s.afterRemoval(ctx, owner, key)
}

// DeleteImages removes the given images of owner's gallery and recomputes
// the owner's cache once. Ids outside the gallery are ignored.
func (s *GalleryService) DeleteImages(ctx context.Context, owner domain.PrimaryKey, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	key := s.keys.Resolve(owner)

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	images, err := s.images.ListByIDs(ctx, s.gallery.Name, key, ids)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}
	if len(images) == 0 {
		return nil
	}

	found := make([]int64, len(images))
	for i, img := range images {
		s.files.Remove(s.files.PathFor(key, img.Src))
		found[i] = img.ID
	}
	if err := s.images.DeleteMany(ctx, found); err != nil {
		return fmt.Errorf("delete images: %w", err)
	}

	return s.afterRemoval(ctx, owner, key)
}

// afterRemoval drops the gallery directory once the last image is gone and
// recomputes the owner's cache.
func (s *GalleryService) afterRemoval(ctx context.Context, owner domain.PrimaryKey, key string) error {
	_, err := s.images.First(ctx, s.gallery.Name, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.files.RemoveDirectory(key)
	case err != nil:
		slog.Warn("check gallery emptiness", "type", s.gallery.Name, "gallery", key, "error", err)
	}
	return s.RecomputeFirstSrc(ctx, owner)
}

// RotateImage turns an image's file 90 degrees clockwise in place. Metadata
// is not touched.
func (s *GalleryService) RotateImage(ctx context.Context, owner domain.PrimaryKey, id int64) error {
	key := s.keys.Resolve(owner)

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	img, err := s.images.Find(ctx, s.gallery.Name, key, id)
	if err != nil {
		return fmt.Errorf("find image: %w", err)
	}

	if err := s.files.Rotate(s.files.PathFor(key, img.Src), rotateDegrees); err != nil {
		return fmt.Errorf("rotate image: %w", err)
	}
	return nil
}

// Arrange reorders images. Entries without a sort value fall back to their
// own id. The resulting values are sorted ascending and handed back to the
// entries in input order, so the first entry always receives the smallest
// value whatever it asked for. The applied order is returned.
func (s *GalleryService) Arrange(ctx context.Context, owner domain.PrimaryKey, order []domain.SortEntry) ([]domain.SortEntry, error) {
	if len(order) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(order))
	values := make([]int64, len(order))
	seen := make(map[int64]bool, len(order))
	for i, e := range order {
		if seen[e.ID] {
			return nil, fmt.Errorf("%w: image %d listed twice", domain.ErrInvalidInput, e.ID)
		}
		seen[e.ID] = true
		ids[i] = e.ID
		if e.Sort == nil {
			values[i] = e.ID
		} else {
			values[i] = *e.Sort
		}
	}
	slices.Sort(values)

	key := s.keys.Resolve(owner)

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	images, err := s.images.ListByIDs(ctx, s.gallery.Name, key, ids)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	if len(images) != len(ids) {
		return nil, fmt.Errorf("arrange: %w", domain.ErrNotFound)
	}

	sorts := make(map[int64]int64, len(ids))
	applied := make([]domain.SortEntry, len(order))
	for i, id := range ids {
		sorts[id] = values[i]
		applied[i] = domain.SortEntry{ID: id, Sort: &values[i]}
	}
	if err := s.images.UpdateSorts(ctx, sorts); err != nil {
		return nil, fmt.Errorf("update sorts: %w", err)
	}

	return applied, s.RecomputeFirstSrc(ctx, owner)
}

// UpdateImagesData applies name/description edits and returns the edited
// images in display order. loaded may carry images the caller already
// listed for this owner; when nil the images are queried. Both paths return
// the same result for the same input.
func (s *GalleryService) UpdateImagesData(ctx context.Context, owner domain.PrimaryKey,
	edits map[int64]domain.ImageEdit, loaded []domain.GalleryImage) ([]domain.GalleryImage, error) {
	if len(edits) == 0 {
		return nil, nil
	}
	key := s.keys.Resolve(owner)

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var targets []domain.GalleryImage
	if loaded != nil {
		for _, img := range loaded {
			if _, ok := edits[img.ID]; ok && img.Type == s.gallery.Name && img.OwnerID == key {
				targets = append(targets, img)
			}
		}
		slices.SortStableFunc(targets, func(a, b domain.GalleryImage) int {
			return cmp.Or(cmp.Compare(a.Sort, b.Sort), cmp.Compare(a.ID, b.ID))
		})
	} else {
		ids := make([]int64, 0, len(edits))
		for id := range edits {
			ids = append(ids, id)
		}
		targets, err = s.images.ListByIDs(ctx, s.gallery.Name, key, ids)
		if err != nil {
			return nil, fmt.Errorf("list images: %w", err)
		}
	}

	for i := range targets {
		img := &targets[i]
		edit := edits[img.ID]
		if edit.Name != nil {
			img.Name = *edit.Name
		}
		if edit.Description != nil {
			img.Description = *edit.Description
		}
		if err := s.images.UpdateData(ctx, img.ID, img.Name, img.Description); err != nil {
			return nil, fmt.Errorf("update image %d: %w", img.ID, err)
		}
	}
	return targets, nil
}

// CascadeDelete removes every image of owner's gallery and its directory.
// Call it before the owner itself is deleted.
func (s *GalleryService) CascadeDelete(ctx context.Context, owner domain.PrimaryKey) error {
	key := s.keys.Resolve(owner)

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	images, err := s.images.List(ctx, s.gallery.Name, key)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}

	ids := make([]int64, len(images))
	for i, img := range images {
		s.files.Remove(s.files.PathFor(key, img.Src))
		ids[i] = img.ID
	}
	if err := s.images.DeleteMany(ctx, ids); err != nil {
		return fmt.Errorf("delete images: %w", err)
	}

	s.files.RemoveDirectory(key)
	slog.Info("gallery deleted", "type", s.gallery.Name, "gallery", key, "images", len(ids))
	return nil
}

// RecomputeFirstSrc writes the src of owner's current first image (or "")
// into the configured owner column, plus the current Unix time into the
// cache-busting column when one is configured. It does nothing when the
// gallery type has no first-src column.
func (s *GalleryService) RecomputeFirstSrc(ctx context.Context, owner domain.PrimaryKey) error {
	if s.gallery.OwnerFirstSrc == "" {
		return nil
	}

	src := ""
	first, err := s.images.First(ctx, s.gallery.Name, s.keys.Resolve(owner))
	switch {
	case err == nil:
		src = first.Src
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("%w: read first image: %w", domain.ErrOwnerSync, err)
	}

	values := map[string]any{s.gallery.OwnerFirstSrc: src}
	if s.gallery.OwnerTimeHash != "" {
		values[s.gallery.OwnerTimeHash] = s.now().Unix()
	}
	if err := s.owners.UpdateColumns(ctx, s.gallery.OwnerTable, owner, values); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrOwnerSync, err)
	}
	return nil
}
