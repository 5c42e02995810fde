package files

import (
	"context"

	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, file *models.File) (*models.File, error)
	GetByID(ctx context.Context, id string) (*models.File, error)
	LockByID(ctx context.Context, id string) (*models.File, error)
	GetByPath(ctx context.Context, path string) (*models.File, error)
	GetByOwner(ctx context.Context, ownerID string) ([]*models.File, error)
	SetCurrentVersion(ctx context.Context, fileID string, versionID *string) error
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
}
