package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tunevault/internal/common"
	"github.com/dmitrijs2005/tunevault/internal/dbx"
	"github.com/dmitrijs2005/tunevault/internal/server/models"
)

// ownerFilenameKey is the constraint enforcing one record per owner and filename.
const ownerFilenameKey = "files_owner_filename_key"

// PostgresRepository implements file metadata storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores a new record and fills in its id and creation time.
// The (owner_email, original_filename) unique constraint makes check and
// insert one atomic step; a violation yields ErrFileAlreadyExistsForCurrentUser.
// Any other constraint violation, such as an object key collision, is a db error.
func (r *PostgresRepository) Insert(ctx context.Context, file *models.File) (*models.File, error) {
	query := `
		INSERT INTO files (owner_name, owner_email, original_filename, cloud_object_key, object_url, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		file.OwnerName, file.OwnerEmail, file.OriginalFilename, file.CloudObjectKey, file.ObjectURL, file.ContentType, file.Size).
		Scan(&file.ID, &file.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolationOn(err, ownerFilenameKey) {
			return nil, common.ErrFileAlreadyExistsForCurrentUser
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return file, nil
}

// Delete removes the owner's record for filename and returns it, so the
// caller learns which object key to remove from storage.
func (r *PostgresRepository) Delete(ctx context.Context, ownerEmail, filename string) (*models.File, error) {
	query := `
		DELETE FROM files
		WHERE owner_email = $1 AND original_filename = $2
		RETURNING id, owner_name, owner_email, original_filename, cloud_object_key, object_url, content_type, size_bytes, created_at
	`
	f := &models.File{}
	err := r.db.QueryRowContext(ctx, query, ownerEmail, filename).
		Scan(&f.ID, &f.OwnerName, &f.OwnerEmail, &f.OriginalFilename, &f.CloudObjectKey, &f.ObjectURL, &f.ContentType, &f.Size, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrFileDoesNotExistForCurrentUser
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, ownerEmail, filename string) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM files WHERE owner_email = $1 AND original_filename = $2)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, ownerEmail, filename).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// ListByOwner returns the owner's records, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerEmail string) ([]*models.File, error) {
	query := `
		SELECT id, owner_name, owner_email, original_filename, cloud_object_key, object_url, content_type, size_bytes, created_at
		FROM files
		WHERE owner_email = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		var item models.File
		if err := rows.Scan(&item.ID, &item.OwnerName, &item.OwnerEmail, &item.OriginalFilename,
			&item.CloudObjectKey, &item.ObjectURL, &item.ContentType, &item.Size, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
