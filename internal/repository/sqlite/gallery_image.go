package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/msomdec/gallery-manager/internal/domain"
)

// galleryImageRepo implements domain.GalleryImageRepository using SQLite.
type galleryImageRepo struct {
	db    *sql.DB
	table string
}

// NewGalleryImageRepository returns a repository over the given table.
func NewGalleryImageRepository(d *DB, table string) (domain.GalleryImageRepository, error) {
	if table == "" {
		table = DefaultImageTable
	}
	quoted, err := quoteIdent(table)
	if err != nil {
		return nil, fmt.Errorf("image table: %w", err)
	}
	return &galleryImageRepo{db: d.SqlDB, table: quoted}, nil
}

const imageColumns = "id, type, owner_id, src, sort, name, description"

func (r *galleryImageRepo) First(ctx context.Context, typ, ownerID string) (*domain.GalleryImage, error) {
	img := &domain.GalleryImage{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM `+r.table+`
		 WHERE type = ? AND owner_id = ? AND status = ?
		 ORDER BY sort, id LIMIT 1`,
		typ, ownerID, domain.ImageStatusReady,
	).Scan(&img.ID, &img.Type, &img.OwnerID, &img.Src, &img.Sort, &img.Name, &img.Description)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get first gallery image: %w", err)
	}
	return img, nil
}

func (r *galleryImageRepo) List(ctx context.Context, typ, ownerID string) ([]domain.GalleryImage, error) {
	return r.query(ctx,
		`SELECT `+imageColumns+` FROM `+r.table+`
		 WHERE type = ? AND owner_id = ? AND status = ?
		 ORDER BY sort, id`,
		typ, ownerID, domain.ImageStatusReady,
	)
}

func (r *galleryImageRepo) ListByIDs(ctx context.Context, typ, ownerID string, ids []int64) ([]domain.GalleryImage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := []any{typ, ownerID, domain.ImageStatusReady}
	for _, id := range ids {
		args = append(args, id)
	}
	return r.query(ctx,
		`SELECT `+imageColumns+` FROM `+r.table+`
		 WHERE type = ? AND owner_id = ? AND status = ? AND id IN (`+placeholders(len(ids))+`)
		 ORDER BY sort, id`,
		args...,
	)
}

func (r *galleryImageRepo) Find(ctx context.Context, typ, ownerID string, id int64) (*domain.GalleryImage, error) {
	img := &domain.GalleryImage{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM `+r.table+`
		 WHERE id = ? AND type = ? AND owner_id = ? AND status = ?`,
		id, typ, ownerID, domain.ImageStatusReady,
	).Scan(&img.ID, &img.Type, &img.OwnerID, &img.Src, &img.Sort, &img.Name, &img.Description)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find gallery image: %w", err)
	}
	return img, nil
}

func (r *galleryImageRepo) query(ctx context.Context, query string, args ...any) ([]domain.GalleryImage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list gallery images: %w", err)
	}
	defer rows.Close()

	var images []domain.GalleryImage
	for rows.Next() {
		var img domain.GalleryImage
		if err := rows.Scan(&img.ID, &img.Type, &img.OwnerID, &img.Src, &img.Sort,
			&img.Name, &img.Description); err != nil {
			return nil, fmt.Errorf("scan gallery image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (r *galleryImageRepo) Insert(ctx context.Context, typ, ownerID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO `+r.table+` (type, owner_id, status, created_at) VALUES (?, ?, ?, ?)`,
		typ, ownerID, domain.ImageStatusPending, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert gallery image: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

func (r *galleryImageRepo) Complete(ctx context.Context, id int64, src string, sort int64) error {
	return r.exec(ctx, "complete gallery image",
		`UPDATE `+r.table+` SET src = ?, sort = ?, status = ? WHERE id = ?`,
		src, sort, domain.ImageStatusReady, id,
	)
}

func (r *galleryImageRepo) UpdateSorts(ctx context.Context, sorts map[int64]int64) error {
	if len(sorts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE `+r.table+` SET sort = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare sort update: %w", err)
	}
	defer stmt.Close()

	for id, sort := range sorts {
		result, err := stmt.ExecContext(ctx, sort, id)
		if err != nil {
			return fmt.Errorf("update sort of gallery image %d: %w", id, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("gallery image %d: %w", id, domain.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *galleryImageRepo) UpdateData(ctx context.Context, id int64, name, description string) error {
	return r.exec(ctx, "update gallery image data",
		`UPDATE `+r.table+` SET name = ?, description = ? WHERE id = ?`, name, description, id,
	)
}

func (r *galleryImageRepo) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, "delete gallery image",
		`DELETE FROM `+r.table+` WHERE id = ?`, id,
	)
}

// exec runs a single-row statement and maps zero affected rows to ErrNotFound.
func (r *galleryImageRepo) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *galleryImageRepo) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+r.table+` WHERE id IN (`+placeholders(len(ids))+`)`, args...,
	); err != nil {
		return fmt.Errorf("delete gallery images: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *galleryImageRepo) PurgePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM `+r.table+` WHERE status = ? AND created_at < ?`,
		domain.ImageStatusPending, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge pending gallery images: %w", err)
	}
	return result.RowsAffected()
}
