package versions

import (
	"context"

	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

type Repository interface {
	Reserve(ctx context.Context, v *models.FileVersion) (*models.FileVersion, error)
	Complete(ctx context.Context, id, checksum string, size int64) (*models.FileVersion, error)
	DiscardReservation(ctx context.Context, id string) error
	NextVersion(ctx context.Context, fileID string) (int64, error)

	GetByID(ctx context.Context, id string) (*models.FileVersion, error)
	GetByPath(ctx context.Context, path string, limit int) ([]*models.FileVersion, error)
	GetLatestByPath(ctx context.Context, path string) (*models.FileVersion, error)
	GetByChecksum(ctx context.Context, checksum string) (*models.FileVersion, error)
	GetCurrentVersion(ctx context.Context, fileID string) (*models.FileVersion, error)
	GetVersions(ctx context.Context, fileID string) ([]*models.FileVersion, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.FileVersion, error)
	GetRevisions(ctx context.Context, fileID string, limit int, includeDeleted bool) ([]*models.FileVersion, error)
	Delete(ctx context.Context, id string) error
}
