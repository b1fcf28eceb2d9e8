package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/msomdec/gallery-manager/internal/domain"
	"github.com/msomdec/gallery-manager/internal/repository/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// DefaultImageTable is the table created by the bundled migrations.
const DefaultImageTable = "gallery_image"

// DB wraps a SQLite connection and hands out repositories bound to it.
type DB struct {
	SqlDB *sql.DB
}

// New opens a SQLite database at the given path and configures it for use.
// It enables WAL mode and foreign keys.
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{SqlDB: db}, nil
}

// Migrate applies the embedded migrations.
func (d *DB) Migrate(ctx context.Context) error {
	return migrations.Run(ctx, d.SqlDB)
}

func (d *DB) Close() error {
	return d.SqlDB.Close()
}

// GalleryImages returns an image repository over the given table. An empty
// name selects DefaultImageTable. Tables other than the default must be
// provisioned with the same columns outside this package.
func (d *DB) GalleryImages(table string) (domain.GalleryImageRepository, error) {
	return NewGalleryImageRepository(d, table)
}

// Owners returns the owner write-back repository.
func (d *DB) Owners() domain.OwnerRepository {
	return NewOwnerRepository(d)
}
