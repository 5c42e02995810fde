package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const fileColumns = `id, name, owner_id, current_version_id, is_deleted, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	var (
		item    models.File
		current sql.NullString
	)
	if err := s.Scan(&item.ID, &item.Name, &item.OwnerID, &current, &item.IsDeleted, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	if current.Valid {
		item.CurrentVersionID = &current.String
	}
	return &item, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Upsert inserts the file, or updates name, pointer and deletion flag when
// file.ID already exists. An empty ID lets the database generate one.
// The owner of an existing row is never changed.
func (r *PostgresRepository) Upsert(ctx context.Context, file *models.File) (*models.File, error) {
	query := `
		INSERT INTO files (id, name, owner_id, current_version_id, is_deleted)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			current_version_id = EXCLUDED.current_version_id,
			is_deleted = EXCLUDED.is_deleted,
			updated_at = now()
		RETURNING ` + fileColumns

	row := r.db.QueryRowContext(ctx, query,
		file.ID, file.Name, file.OwnerID, nullable(file.CurrentVersionID), file.IsDeleted)
	result, err := scanFile(row)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.ClassifyError(err))
	}
	return result, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// LockByID reads the file and holds a row lock on it until the surrounding
// transaction ends. Without a transaction it behaves like GetByID.
func (r *PostgresRepository) LockByID(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// GetByPath returns the file owning any version row stored under path,
// pending reservations included, so that a first upload in flight already
// claims the path.
func (r *PostgresRepository) GetByPath(ctx context.Context, path string) (*models.File, error) {
	query := `
		SELECT ` + fileColumns + ` FROM files
		WHERE id = (
			SELECT file_id FROM file_versions
			WHERE path = $1
			ORDER BY version DESC
			LIMIT 1
		)`
	return r.getOne(ctx, query, path)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.File, error) {
	result, err := scanFile(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return result, nil
}

// GetByOwner returns the non-deleted files of ownerID, oldest first.
func (r *PostgresRepository) GetByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE owner_id = $1 AND NOT is_deleted
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		item, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetCurrentVersion repoints the file. A nil versionID clears the pointer.
func (r *PostgresRepository) SetCurrentVersion(ctx context.Context, fileID string, versionID *string) error {
	query := `UPDATE files SET current_version_id = $2, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, fileID, nullable(versionID))
}

// Delete marks the file deleted. Its versions are left untouched.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE files SET is_deleted = true, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id)
}

// Restore clears the deletion flag and nothing else, so a concurrent pointer
// update is never overwritten.
func (r *PostgresRepository) Restore(ctx context.Context, id string) error {
	query := `UPDATE files SET is_deleted = false, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.ClassifyError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
