package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/tunevault/internal/common"
	"github.com/dmitrijs2005/tunevault/internal/logging"
	"github.com/dmitrijs2005/tunevault/internal/server/config"
	"github.com/dmitrijs2005/tunevault/internal/server/metrics"
	"github.com/dmitrijs2005/tunevault/internal/server/models"
	"github.com/dmitrijs2005/tunevault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Step names, also used as metric labels.
const (
	StepPutObject      = "put_object"
	StepInsertMetadata = "insert_metadata"
)

const maxFilenameLen = 255

// AllowedExtensions lists the audio formats accepted for upload.
var AllowedExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
}

// ObjectStore holds file payloads.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// OwnerInfo identifies the uploading user.
type OwnerInfo struct {
	Name  string
	Email string
}

// FileService keeps object storage and file metadata consistent. The
// metadata record is the source of truth: an object without a record is
// unreachable through the API.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	objects     ObjectStore
	folder      string
	maxBytes    int64
	metrics     *metrics.Metrics
	log         logging.Logger
	now         func() time.Time
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, objects ObjectStore, cfg *config.Config,
	mx *metrics.Metrics, log logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: m,
		objects:     objects,
		folder:      cfg.S3BucketFolder,
		maxBytes:    cfg.MaxUploadBytes,
		metrics:     mx,
		log:         log.With("module", "files"),
		now:         time.Now,
	}
}

// NewObjectKey builds a collision-free object key of the form
// <folder>/<yyyy>/<mm>/<dd>/<uuid><ext>.
func NewObjectKey(folder, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	name := uuid.NewString() + ext
	datePath := fmt.Sprintf("%04d/%02d/%02d", now.Year(), int(now.Month()), now.Day())

	folder = strings.Trim(folder, "/")
	if folder == "" {
		return path.Join(datePath, name)
	}
	return path.Join(folder, datePath, name)
}

// ValidateUpload checks the filename and size of an upload candidate.
func (s *FileService) ValidateUpload(filename string, size int64) error {
	if filename == "" || len(filename) > maxFilenameLen {
		return fmt.Errorf("%w: filename must be 1..%d bytes", common.ErrorValidation, maxFilenameLen)
	}
	if strings.ContainsAny(filename, `/\`) || filename == "." || filename == ".." {
		return fmt.Errorf("%w: filename must not contain a path", common.ErrorValidation)
	}
	if _, ok := AllowedExtensions[strings.ToLower(path.Ext(filename))]; !ok {
		return fmt.Errorf("%w: unsupported file type %q", common.ErrorValidation, path.Ext(filename))
	}
	if size < 0 || (s.maxBytes > 0 && size > s.maxBytes) {
		return fmt.Errorf("%w: file size must be at most %d bytes", common.ErrorValidation, s.maxBytes)
	}
	return nil
}

// Upload stores body as filename for owner. The caller must already be
// authorized. A second upload of the same name fails with
// ErrFileAlreadyExistsForCurrentUser and never touches object storage; if the
// metadata insert fails, the freshly stored object is removed again.
//
// clientType is informational only: the stored content type always comes from
// the filename extension, so an object is never served as anything but audio.
func (s *FileService) Upload(ctx context.Context, owner OwnerInfo, filename, clientType string, size int64, body io.Reader) (*models.File, error) {
	if err := s.ValidateUpload(filename, size); err != nil {
		s.metrics.Upload(metrics.ResultError, 0)
		return nil, err
	}
	contentType := AllowedExtensions[strings.ToLower(path.Ext(filename))]
	if clientType != "" && clientType != contentType {
		s.log.Debug(ctx, "ignoring client content type", "filename", filename, "client_type", clientType, "content_type", contentType)
	}

	repo := s.repomanager.Files(s.db)

	exists, err := repo.Exists(ctx, owner.Email, filename)
	if err != nil {
		s.metrics.Upload(metrics.ResultError, 0)
		return nil, fmt.Errorf("checking existing file: %w", err)
	}
	if exists {
		s.metrics.Upload(metrics.ResultConflict, 0)
		return nil, common.ErrFileAlreadyExistsForCurrentUser
	}

	record := &models.File{
		OwnerName:        owner.Name,
		OwnerEmail:       owner.Email,
		OriginalFilename: filename,
		CloudObjectKey:   NewObjectKey(s.folder, filename, s.now()),
		ContentType:      contentType,
		Size:             size,
	}

	steps := []Step{
		{
			Name: StepPutObject,
			Do: func(ctx context.Context) error {
				url, err := s.objects.Put(ctx, record.CloudObjectKey, body, size, contentType)
				if err != nil {
					return err
				}
				record.ObjectURL = url
				return nil
			},
			Undo: func(ctx context.Context) error {
				return s.objects.Delete(ctx, record.CloudObjectKey)
			},
		},
		{
			Name: StepInsertMetadata,
			Do: func(ctx context.Context) error {
				inserted, err := repo.Insert(ctx, record)
				if err != nil {
					return err
				}
				record = inserted
				return nil
			},
		},
	}

	err = runSteps(ctx, steps, func(step string, undoErr error) {
		if undoErr != nil {
			s.metrics.Compensation(step, metrics.ResultError)
			s.log.Error(ctx, "compensation failed, object orphaned", "step", step, "key", record.CloudObjectKey, "error", undoErr)
			s.metrics.ObjectOrphaned()
			return
		}
		s.metrics.Compensation(step, metrics.ResultSuccess)
		s.log.Info(ctx, "compensation applied", "step", step, "key", record.CloudObjectKey)
	})
	if err != nil {
		if errors.Is(err, common.ErrFileAlreadyExistsForCurrentUser) {
			s.metrics.Upload(metrics.ResultConflict, 0)
			return nil, common.ErrFileAlreadyExistsForCurrentUser
		}
		s.metrics.Upload(metrics.ResultError, 0)
		return nil, fmt.Errorf("upload %q: %w", filename, err)
	}

	s.metrics.Upload(metrics.ResultSuccess, size)
	s.log.Info(ctx, "file uploaded", "owner", owner.Email, "filename", filename, "key", record.CloudObjectKey)
	return record, nil
}

// Delete removes the owner's record for filename, then its object. A missing
// record fails with ErrFileDoesNotExistForCurrentUser before storage is
// touched. A failed object delete is logged and counted, not returned.
func (s *FileService) Delete(ctx context.Context, ownerEmail, filename string) error {
	rec, err := s.repomanager.Files(s.db).Delete(ctx, ownerEmail, filename)
	if err != nil {
		if errors.Is(err, common.ErrFileDoesNotExistForCurrentUser) {
			s.metrics.Delete(metrics.ResultNotFound)
			return err
		}
		s.metrics.Delete(metrics.ResultError)
		return fmt.Errorf("deleting file record: %w", err)
	}

	// The record is already gone; finish the object delete even if the
	// client has hung up.
	objCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), undoTimeout)
	defer cancel()

	if err := s.objects.Delete(objCtx, rec.CloudObjectKey); err != nil {
		s.log.Error(ctx, "object delete failed, object orphaned", "owner", ownerEmail, "filename", filename, "key", rec.CloudObjectKey, "error", err)
		s.metrics.ObjectOrphaned()
	}

	s.metrics.Delete(metrics.ResultSuccess)
	s.log.Info(ctx, "file deleted", "owner", ownerEmail, "filename", filename)
	return nil
}

// List returns the owner's files, newest first.
func (s *FileService) List(ctx context.Context, ownerEmail string) ([]*models.File, error) {
	files, err := s.repomanager.Files(s.db).ListByOwner(ctx, ownerEmail)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}
