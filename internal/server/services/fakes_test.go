package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/tunevault/internal/common"
	"github.com/dmitrijs2005/tunevault/internal/dbx"
	"github.com/dmitrijs2005/tunevault/internal/server/models"
	"github.com/dmitrijs2005/tunevault/internal/server/repositories/files"
	"github.com/dmitrijs2005/tunevault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tunevault/internal/server/repositories/users"
)

type fakeRepoManager struct {
	u users.Repository
	r refreshtokens.Repository
	f files.Repository
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error         { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository { return m.r }
func (m *fakeRepoManager) Files(db dbx.DBTX) files.Repository                 { return m.f }

// memFiles enforces (owner_email, original_filename) uniqueness like the
// database constraint does.
type memFiles struct {
	mu        sync.Mutex
	records   map[[2]string]*models.File
	insertErr error
	existsErr error
	deleteErr error
	inserts   int
}

func newMemFiles() *memFiles {
	return &memFiles{records: map[[2]string]*models.File{}}
}

func (m *memFiles) Insert(ctx context.Context, f *models.File) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	k := [2]string{f.OwnerEmail, f.OriginalFilename}
	if _, ok := m.records[k]; ok {
		return nil, common.ErrFileAlreadyExistsForCurrentUser
	}
	cp := *f
	cp.ID = "id-" + f.OriginalFilename
	cp.CreatedAt = time.Now()
	m.records[k] = &cp
	return &cp, nil
}

func (m *memFiles) Delete(ctx context.Context, email, name string) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	k := [2]string{email, name}
	f, ok := m.records[k]
	if !ok {
		return nil, common.ErrFileDoesNotExistForCurrentUser
	}
	delete(m.records, k)
	return f, nil
}

func (m *memFiles) Exists(ctx context.Context, email, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.records[[2]string{email, name}]
	return ok, nil
}

func (m *memFiles) ListByOwner(ctx context.Context, email string) ([]*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.File
	for k, f := range m.records {
		if k[0] == email {
			out = append(out, f)
		}
	}
	return out, nil
}

type memObjects struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	puts      int
	deletes   []string
	putErr    error
	deleteErr error
	// deleteCtxErr records ctx.Err() observed by Delete.
	deleteCtxErr error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return "", m.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", err
	}
	m.objects[key] = buf.Bytes()
	m.types[key] = contentType
	return "http://objects.local/" + key, nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, key)
	m.deleteCtxErr = ctx.Err()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

func (m *memObjects) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type fakeUsersRepo struct {
	users.Repository

	createErr error
	created   *models.User

	byEmail    map[string]*models.User
	byID       map[string]*models.User
	getErr     error
	lastLookup string
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	u.ID = "u-new"
	f.created = u
	return u, nil
}

func (f *fakeUsersRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.lastLookup = email
	if f.getErr != nil {
		return nil, f.getErr
	}
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

type fakeRefreshRepo struct {
	tokens    map[string]*models.RefreshToken
	createErr error
	findErr   error
	deleteErr error
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID, token string, expires time.Time) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: expires}
	return nil
}

func (f *fakeRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	t, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

func (f *fakeRefreshRepo) Delete(ctx context.Context, token string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.tokens[token]; !ok {
		return common.ErrorNotFound
	}
	delete(f.tokens, token)
	return nil
}

type fakeEncoder struct {
	err error
}

func (f *fakeEncoder) Encode(id, role string, ttl time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "access:" + id + ":" + role, nil
}

var errBoom = errors.New("boom")
