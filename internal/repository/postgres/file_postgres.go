package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"filescdn/internal/model"
	"filescdn/internal/repository"
)

const fileColumns = `id, collection, name, extension, type, path, size, checksum, is_complete, user_id, meta, versions, created_at, updated_at`

// FilePostgres is a PostgreSQL implementation of repository.FileRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type FilePostgres struct {
	db *sql.DB
}

// NewFilePostgres creates a new FilePostgres repository.
func NewFilePostgres(db *sql.DB) *FilePostgres {
	return &FilePostgres{db: db}
}

var _ repository.FileRepository = (*FilePostgres)(nil)

// Insert stores a new file row.
func (r *FilePostgres) Insert(ctx context.Context, rec *model.FileRecord) error {
	const q = `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	meta, err := marshalJSON(rec.Meta)
	if err != nil {
		return err
	}
	versions, err := marshalJSON(rec.Versions)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q,
		rec.ID,
		rec.Collection,
		rec.Name,
		rec.Extension,
		rec.Type,
		rec.Path,
		rec.Size,
		rec.Checksum,
		rec.IsComplete,
		rec.UserID,
		meta,
		versions,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

// Update applies the non-nil fields of patch. updated_at is always written.
func (r *FilePostgres) Update(ctx context.Context, id string, patch repository.FilePatch) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Size != nil {
		add("size", *patch.Size)
	}
	if patch.IsComplete != nil {
		add("is_complete", *patch.IsComplete)
	}
	if patch.Checksum != nil {
		add("checksum", *patch.Checksum)
	}
	if patch.Meta != nil {
		b, err := marshalJSON(patch.Meta)
		if err != nil {
			return err
		}
		add("meta", b)
	}
	if patch.Versions != nil {
		b, err := marshalJSON(patch.Versions)
		if err != nil {
			return err
		}
		add("versions", b)
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	add("updated_at", updatedAt)

	args = append(args, id)
	q := fmt.Sprintf("UPDATE files SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Remove deletes matching rows.
func (r *FilePostgres) Remove(ctx context.Context, fq repository.FileQuery) (int64, error) {
	if fq.Empty() {
		return 0, repository.ErrEmptyQuery
	}
	where, args := whereClause(fq)
	res, err := r.db.ExecContext(ctx, "DELETE FROM files"+where, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FindOne fetches the first matching row.
func (r *FilePostgres) FindOne(ctx context.Context, fq repository.FileQuery) (*model.FileRecord, error) {
	where, args := whereClause(fq)
	q := "SELECT " + fileColumns + " FROM files" + where + " ORDER BY created_at ASC LIMIT 1"

	rec, err := scanFile(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Find returns all matching rows.
func (r *FilePostgres) Find(ctx context.Context, fq repository.FileQuery) ([]model.FileRecord, error) {
	where, args := whereClause(fq)
	q := "SELECT " + fileColumns + " FROM files" + where + " ORDER BY created_at ASC, id ASC"
	return r.query(ctx, q, args...)
}

// List returns rows using LIMIT/OFFSET pagination and a total count.
func (r *FilePostgres) List(ctx context.Context, fq repository.FileQuery, pq repository.PageQuery) (*repository.PageResult[model.FileRecord], error) {
	where, args := whereClause(fq)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files"+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	n := len(args)
	q := fmt.Sprintf("SELECT %s FROM files%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", fileColumns, where, n+1, n+2)
	items, err := r.query(ctx, q, append(args, pq.Limit, pq.Offset)...)
	if err != nil {
		return nil, err
	}

	return &repository.PageResult[model.FileRecord]{
		Items: items,
		Total: total,
	}, nil
}

func (r *FilePostgres) query(ctx context.Context, q string, args ...any) ([]model.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.FileRecord, 0)
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*model.FileRecord, error) {
	var (
		rec            model.FileRecord
		meta, versions []byte
	)
	if err := s.Scan(
		&rec.ID,
		&rec.Collection,
		&rec.Name,
		&rec.Extension,
		&rec.Type,
		&rec.Path,
		&rec.Size,
		&rec.Checksum,
		&rec.IsComplete,
		&rec.UserID,
		&meta,
		&versions,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
	}
	if len(versions) > 0 {
		if err := json.Unmarshal(versions, &rec.Versions); err != nil {
			return nil, fmt.Errorf("decode versions: %w", err)
		}
	}
	return &rec, nil
}

func whereClause(fq repository.FileQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("id", fq.ID)
	add("collection", fq.Collection)
	add("user_id", fq.UserID)

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	if string(b) == "null" {
		return []byte("{}"), nil
	}
	return b, nil
}
