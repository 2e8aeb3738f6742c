package users

import (
	"context"

	"github.com/dmitrijs2005/tunevault/internal/server/models"
)

// Repository is the identity store. ValidateUID is the only call the
// permission gate makes; it has no side effects.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ValidateUID(ctx context.Context, id string) (bool, error)
}
