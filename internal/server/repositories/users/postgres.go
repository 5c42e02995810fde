package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// PostgresRepository implements user storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrCreate returns the user bound to externalID, inserting it first if
// needed. Concurrent calls for the same id converge on a single row.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, externalID string) (*models.User, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: empty external user id", common.ErrorValidation)
	}

	query := `
		INSERT INTO users (external_user_id)
		VALUES ($1)
		ON CONFLICT (external_user_id)
		DO UPDATE SET updated_at = now()
		RETURNING id, external_user_id, created_at, updated_at
	`
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, externalID).
		Scan(&user.ID, &user.ExternalUserID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// GetByExternalID returns common.ErrorNotFound when no user is bound to externalID.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	query := `SELECT id, external_user_id, created_at, updated_at FROM users WHERE external_user_id = $1`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, externalID).
		Scan(&user.ID, &user.ExternalUserID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}
