package files

import (
	"context"

	"github.com/dmitrijs2005/tunevault/internal/server/models"
)

// Repository is the per-owner file metadata store. Every operation is scoped
// by the owner's email; records are inserted or deleted, never updated.
type Repository interface {
	Insert(ctx context.Context, file *models.File) (*models.File, error)
	Delete(ctx context.Context, ownerEmail, filename string) (*models.File, error)
	Exists(ctx context.Context, ownerEmail, filename string) (bool, error)
	ListByOwner(ctx context.Context, ownerEmail string) ([]*models.File, error)
}
