package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// PostgresRepository implements file version storage over a dbx.DBTX.
// Every read except GetByID and NextVersion only sees readable rows:
// completed and not deleted.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const (
	versionColumns = `id, file_id, version, size, checksum, path, bucket, upload_status, is_deleted, created_at, updated_at`
	readable       = `upload_status = 'completed' AND NOT is_deleted`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(s scanner) (*models.FileVersion, error) {
	var (
		item     models.FileVersion
		checksum sql.NullString
	)
	err := s.Scan(&item.ID, &item.FileID, &item.Version, &item.Size, &checksum,
		&item.Path, &item.Bucket, &item.UploadStatus, &item.IsDeleted, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Checksum = checksum.String
	return &item, nil
}

// Reserve inserts a pending row claiming (file_id, version) and (path, version).
// A concurrent writer holding the same number yields common.ErrVersionConflict.
func (r *PostgresRepository) Reserve(ctx context.Context, v *models.FileVersion) (*models.FileVersion, error) {
	if v.Version <= 0 {
		return nil, fmt.Errorf("%w: version must be positive", common.ErrorValidation)
	}
	query := `
		INSERT INTO file_versions (file_id, version, path, bucket, upload_status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING ` + versionColumns

	result, err := scanVersion(r.db.QueryRowContext(ctx, query, v.FileID, v.Version, v.Path, v.Bucket))
	if err != nil {
		return nil, fmt.Errorf("reserve version: %w", dbx.ClassifyError(err))
	}
	return result, nil
}

// Complete records checksum and size and makes the pending row readable.
func (r *PostgresRepository) Complete(ctx context.Context, id, checksum string, size int64) (*models.FileVersion, error) {
	if err := ValidateChecksum(checksum); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size", common.ErrorValidation)
	}
	query := `
		UPDATE file_versions
		SET checksum = $2, size = $3, upload_status = 'completed', updated_at = now()
		WHERE id = $1 AND upload_status = 'pending'
		RETURNING ` + versionColumns

	result, err := scanVersion(r.db.QueryRowContext(ctx, query, id, checksum, size))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("complete version: %w", dbx.ClassifyError(err))
	}
	return result, nil
}

// DiscardReservation removes a pending row. Completed rows are never touched.
func (r *PostgresRepository) DiscardReservation(ctx context.Context, id string) error {
	query := `DELETE FROM file_versions WHERE id = $1 AND upload_status = 'pending'`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("discard reservation: %w", err)
	}
	return nil
}

// NextVersion counts pending reservations too, so a number is never handed
// out twice while an earlier upload is still writing its blob.
func (r *PostgresRepository) NextVersion(ctx context.Context, fileID string) (int64, error) {
	query := `SELECT COALESCE(MAX(version), 0) + 1 FROM file_versions WHERE file_id = $1`
	var next int64
	if err := r.db.QueryRowContext(ctx, query, fileID).Scan(&next); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return next, nil
}

// GetByID returns the row regardless of its state; callers check Readable.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.FileVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM file_versions WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByPath returns up to limit readable versions stored under path, newest first.
func (r *PostgresRepository) GetByPath(ctx context.Context, path string, limit int) ([]*models.FileVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM file_versions
		WHERE path = $1 AND ` + readable + `
		ORDER BY version DESC
		LIMIT $2`
	return r.getMany(ctx, query, path, limit)
}

func (r *PostgresRepository) GetLatestByPath(ctx context.Context, path string) (*models.FileVersion, error) {
	items, err := r.GetByPath(ctx, path, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, common.ErrorNotFound
	}
	return items[0], nil
}

// GetByChecksum returns the oldest readable version with the given content.
func (r *PostgresRepository) GetByChecksum(ctx context.Context, checksum string) (*models.FileVersion, error) {
	if err := ValidateChecksum(checksum); err != nil {
		return nil, err
	}
	query := `SELECT ` + versionColumns + ` FROM file_versions
		WHERE checksum = $1 AND ` + readable + `
		ORDER BY created_at, id
		LIMIT 1`
	return r.getOne(ctx, query, checksum)
}

// GetCurrentVersion returns the highest readable version of fileID.
func (r *PostgresRepository) GetCurrentVersion(ctx context.Context, fileID string) (*models.FileVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM file_versions
		WHERE file_id = $1 AND ` + readable + `
		ORDER BY version DESC
		LIMIT 1`
	return r.getOne(ctx, query, fileID)
}

// GetVersions returns every readable version of fileID in ascending order.
func (r *PostgresRepository) GetVersions(ctx context.Context, fileID string) ([]*models.FileVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM file_versions
		WHERE file_id = $1 AND ` + readable + `
		ORDER BY version`
	return r.getMany(ctx, query, fileID)
}

// GetByIDs batch-loads readable versions. Result order is unspecified.
func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.FileVersion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	query := `SELECT ` + versionColumns + ` FROM file_versions
		WHERE id IN (` + strings.Join(placeholders, ", ") + `) AND ` + readable
	return r.getMany(ctx, query, args...)
}

// GetRevisions returns up to limit completed versions of fileID, newest
// first. Soft-deleted rows are included only when includeDeleted is set.
func (r *PostgresRepository) GetRevisions(ctx context.Context, fileID string, limit int, includeDeleted bool) ([]*models.FileVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM file_versions
		WHERE file_id = $1 AND upload_status = 'completed' AND ($3 OR NOT is_deleted)
		ORDER BY version DESC
		LIMIT $2`
	return r.getMany(ctx, query, fileID, limit, includeDeleted)
}

// Delete soft-deletes a completed version.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE file_versions SET is_deleted = true, updated_at = now()
		WHERE id = $1 AND upload_status = 'completed'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.FileVersion, error) {
	result, err := scanVersion(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select version: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) getMany(ctx context.Context, query string, args ...any) ([]*models.FileVersion, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select versions: %w", err)
	}
	defer rows.Close()

	var result []*models.FileVersion
	for rows.Next() {
		item, err := scanVersion(rows)
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
