package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/msomdec/gallery-manager/internal/domain"
)

// ownerRepo implements domain.OwnerRepository using SQLite. It writes to
// whatever table the owning entity lives in.
type ownerRepo struct {
	db *sql.DB
}

// NewOwnerRepository creates a new owner write-back repository.
func NewOwnerRepository(d *DB) domain.OwnerRepository {
	return &ownerRepo{db: d.SqlDB}
}

func (r *ownerRepo) Exists(ctx context.Context, table string, pk domain.PrimaryKey) error {
	quotedTable, conds, args, err := ownerWhere(table, pk)
	if err != nil {
		return err
	}

	var one int
	err = r.db.QueryRowContext(ctx,
		"SELECT 1 FROM "+quotedTable+" WHERE "+conds+" LIMIT 1", args...,
	).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		return fmt.Errorf("find owner: %w", err)
	}
	return nil
}

// ownerWhere quotes table and builds the primary key condition.
func ownerWhere(table string, pk domain.PrimaryKey) (string, string, []any, error) {
	if len(pk) == 0 {
		return "", "", nil, fmt.Errorf("%w: empty owner primary key", domain.ErrInvalidInput)
	}
	quotedTable, err := quoteIdent(table)
	if err != nil {
		return "", "", nil, err
	}

	conds := make([]string, 0, len(pk))
	args := make([]any, 0, len(pk))
	for _, part := range pk {
		quoted, err := quoteIdent(part.Column)
		if err != nil {
			return "", "", nil, err
		}
		conds = append(conds, quoted+" = ?")
		args = append(args, part.Value)
	}
	return quotedTable, strings.Join(conds, " AND "), args, nil
}

func (r *ownerRepo) UpdateColumns(ctx context.Context, table string, pk domain.PrimaryKey, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}

	quotedTable, conds, pkArgs, err := ownerWhere(table, pk)
	if err != nil {
		return err
	}

	// Stable column order keeps the statement text deterministic.
	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	sets := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+len(pkArgs))
	for _, col := range columns {
		quoted, err := quoteIdent(col)
		if err != nil {
			return err
		}
		sets = append(sets, quoted+" = ?")
		args = append(args, values[col])
	}

	args = append(args, pkArgs...)

	result, err := r.db.ExecContext(ctx,
		"UPDATE "+quotedTable+" SET "+strings.Join(sets, ", ")+" WHERE "+conds,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update owner: %w", err)
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
