package users

import (
	"context"

	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

type Repository interface {
	GetOrCreate(ctx context.Context, externalID string) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
}
