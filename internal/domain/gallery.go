package domain

import (
	"context"
	"io"
	"time"
)

// KeyPart is one named column of an owner's primary key.
type KeyPart struct {
	Column string
	Value  any
}

// PrimaryKey is an owner's primary key in column order. A scalar key has
// exactly one part.
type PrimaryKey []KeyPart

// Scalar builds a single-column primary key.
func Scalar(column string, value any) PrimaryKey {
	return PrimaryKey{{Column: column, Value: value}}
}

// ImageStatus tracks the two-phase insert of a gallery image.
type ImageStatus string

const (
	ImageStatusPending ImageStatus = "pending"
	ImageStatusReady   ImageStatus = "ready"
)

// GalleryImage is one image of a gallery. A gallery is the set of images
// sharing (Type, OwnerID); it has no row of its own.
type GalleryImage struct {
	ID          int64
	Type        string
	OwnerID     string // GalleryKey of the owning entity
	Src         string // stored file name, unique within the gallery directory
	Sort        int64
	Name        string
	Description string
}

// Upload is a pre-validated file handed to the gallery by the transport.
// None of the declared fields are inferred by the gallery itself.
type Upload struct {
	Body      io.Reader
	Filename  string
	Extension string // without the leading dot
	Size      int64
	MimeType  string
}

// ImageEdit is a partial name/description update. Nil fields are left as is.
type ImageEdit struct {
	Name        *string
	Description *string
}

// SortEntry is one element of an arrange request. A nil Sort means the
// caller did not supply a position; zero is a valid position.
type SortEntry struct {
	ID   int64
	Sort *int64
}

// UploadPolicy is the validation policy applied by the transport before an
// upload reaches the gallery. Zero values disable the corresponding check.
type UploadPolicy struct {
	AllowedMimeTypes  []string
	AllowedExtensions []string
	MaxSize           int64
	MinWidth          int
	MinHeight         int
	MaxWidth          int
	MaxHeight         int
}

// GalleryType configures the gallery of one owner model.
type GalleryType struct {
	Name          string   // namespace tag stored in the type column
	OwnerTable    string   // table of the owning entity, for first-src write-back
	PKColumns     []string // primary key columns of OwnerTable, in order
	OwnerFirstSrc string   // cached first-src column; empty disables the cache
	OwnerTimeHash string   // cache-busting timestamp column; optional
	Policy        UploadPolicy
}

// GalleryImageRepository handles image metadata persistence. Lookups by raw
// id (Complete, Update*, Delete*) trust the caller to have scoped the id.
type GalleryImageRepository interface {
	// First returns the lowest-sort ready image, or ErrNotFound.
	First(ctx context.Context, typ, ownerID string) (*GalleryImage, error)
	List(ctx context.Context, typ, ownerID string) ([]GalleryImage, error)
	ListByIDs(ctx context.Context, typ, ownerID string, ids []int64) ([]GalleryImage, error)
	Find(ctx context.Context, typ, ownerID string, id int64) (*GalleryImage, error)
	// Insert creates a bare pending row and returns its id.
	Insert(ctx context.Context, typ, ownerID string) (int64, error)
	// Complete sets src and sort on a pending row and marks it ready.
	Complete(ctx context.Context, id int64, src string, sort int64) error
	// UpdateSorts sets the sort of every id in one transaction. An unknown
	// id rolls back all of them with ErrNotFound.
	UpdateSorts(ctx context.Context, sorts map[int64]int64) error
	UpdateData(ctx context.Context, id int64, name, description string) error
	Delete(ctx context.Context, id int64) error
	DeleteMany(ctx context.Context, ids []int64) error
	// PurgePending removes pending rows older than the given age.
	PurgePending(ctx context.Context, olderThan time.Duration) (int64, error)
}

// OwnerRepository reads and writes the owner rows galleries belong to.
type OwnerRepository interface {
	// Exists returns ErrNotFound when no row of table matches pk.
	Exists(ctx context.Context, table string, pk PrimaryKey) error
	UpdateColumns(ctx context.Context, table string, pk PrimaryKey, values map[string]any) error
}

// FileStore maps gallery keys and file names onto a directory-per-gallery
// layout.
type FileStore interface {
	PathFor(galleryKey, filename string) string
	EnsureDirectory(galleryKey string) (string, error)
	GenerateUniqueName(galleryKey, ext string) (string, error)
	Write(path string, r io.Reader) error
	Remove(path string)
	RemoveDirectory(galleryKey string)
	PublicURL(galleryKey, filename string) (string, bool)
	Rotate(path string, degrees int) error
}
