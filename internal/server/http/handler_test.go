package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/tunevault/internal/common"
	"github.com/dmitrijs2005/tunevault/internal/logging"
	"github.com/dmitrijs2005/tunevault/internal/server/auth"
	apihttp "github.com/dmitrijs2005/tunevault/internal/server/http"
	"github.com/dmitrijs2005/tunevault/internal/server/metrics"
	"github.com/dmitrijs2005/tunevault/internal/server/models"
	"github.com/dmitrijs2005/tunevault/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFileService struct {
	mock.Mock
}

func (m *MockFileService) Upload(ctx context.Context, owner services.OwnerInfo, filename, contentType string, size int64, body io.Reader) (*models.File, error) {
	data, _ := io.ReadAll(body)
	args := m.Called(ctx, owner, filename, contentType, size, string(data))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.File), args.Error(1)
}

func (m *MockFileService) Delete(ctx context.Context, ownerEmail, filename string) error {
	args := m.Called(ctx, ownerEmail, filename)
	return args.Error(0)
}

func (m *MockFileService) List(ctx context.Context, ownerEmail string) ([]*models.File, error) {
	args := m.Called(ctx, ownerEmail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.File), args.Error(1)
}

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, email, name, password string) (*models.User, error) {
	args := m.Called(ctx, email, name, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Login(ctx context.Context, email, password string) (*services.TokenPair, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TokenPair), args.Error(1)
}

func (m *MockUserService) RefreshToken(ctx context.Context, token string) (*services.TokenPair, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TokenPair), args.Error(1)
}

func (m *MockUserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// tokenGate accepts "Bearer good" only.
type tokenGate struct{}

func (tokenGate) Permit(r *http.Request) (auth.Claims, bool) {
	if r.Header.Get("Authorization") == "Bearer good" {
		return auth.Claims{ID: "u1", Role: "user"}, true
	}
	return auth.Claims{}, false
}

var alice = &models.User{ID: "u1", Email: "a@example.com", Name: "Alice", Role: "user"}

type fixture struct {
	files   *MockFileService
	users   *MockUserService
	metrics *metrics.Metrics
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{files: new(MockFileService), users: new(MockUserService), metrics: metrics.New()}
	h := apihttp.NewHandler(apihttp.HandlerConfig{
		MaxUploadBytes:     1 << 10,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
	}, f.files, f.users, tokenGate{}, nil, f.metrics, logging.Nop())
	f.router = h.Router()
	t.Cleanup(func() {
		f.files.AssertExpectations(t)
		f.users.AssertExpectations(t)
	})
	return f
}

func (f *fixture) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func multipartRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/app/uploads", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.Header.Set("Authorization", "Bearer good")
	return r
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apihttp.ErrorResponse {
	t.Helper()
	var er apihttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	return er
}

func TestUpload_Success(t *testing.T) {
	f := newFixture(t)
	owner := services.OwnerInfo{Name: "Alice", Email: "a@example.com"}
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	f.users.On("GetByID", mock.Anything, "u1").Return(alice, nil)
	f.files.On("Upload", mock.Anything, owner, "song.mp3", "application/octet-stream", int64(4), "data").
		Return(&models.File{ID: "f1", OwnerEmail: owner.Email, OriginalFilename: "song.mp3", ObjectURL: "http://x/k", Size: 4, CreatedAt: created}, nil)

	rec := f.do(multipartRequest(t, "file", "song.mp3", "data"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "f1", body["id"])
	assert.Equal(t, "http://x/k", body["object_url"])
	assert.NotContains(t, body, "cloud_object_key")
}

func TestUpload_Conflict(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByID", mock.Anything, "u1").Return(alice, nil)
	f.files.On("Upload", mock.Anything, mock.Anything, "song.mp3", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, common.ErrFileAlreadyExistsForCurrentUser)

	rec := f.do(multipartRequest(t, "file", "song.mp3", "data"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "file_exists", decodeError(t, rec).Error)
}

func TestUpload_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByID", mock.Anything, "u1").Return(alice, nil)
	f.files.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("put_object: connection refused"))

	rec := f.do(multipartRequest(t, "file", "song.mp3", "data"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	er := decodeError(t, rec)
	assert.Equal(t, "service_unavailable", er.Error)
	assert.NotContains(t, er.Message, "connection refused")
}

func TestUpload_MissingField(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByID", mock.Anything, "u1").Return(alice, nil)

	rec := f.do(multipartRequest(t, "other", "song.mp3", "data"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_TooLarge(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByID", mock.Anything, "u1").Return(alice, nil)

	rec := f.do(multipartRequest(t, "file", "song.mp3", strings.Repeat("x", 3<<20)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file_too_large", decodeError(t, rec).Error)
}

func TestUpload_StripsClientDirectory(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByID", mock.Anything, "u1").Return(alice, nil)
	f.files.On("Upload", mock.Anything, mock.Anything, "song.mp3", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.File{ID: "f1"}, nil)

	rec := f.do(multipartRequest(t, "file", `C:\music\song.mp3`, "data"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAppRoutes_Unauthorized(t *testing.T) {
	f := newFixture(t)

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/app/posts", nil),
		httptest.NewRequest(http.MethodPost, "/api/app/uploads", nil),
		httptest.NewRequest(http.MethodDelete, "/api/app/uploads/song.mp3", nil),
	} {
		r.Header.Set("Authorization", "Bearer bad")
		rec := f.do(r)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		er := decodeError(t, rec)
		assert.Equal(t, "unauthorized", er.Error)
		assert.Empty(t, er.Message, "denial reason must not leak")
	}

	assert.Equal(t, 3.0, sumCounter(t, f.metrics, "tunevault_http_requests_total"))
}

func TestUser_Vanished(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByID", mock.Anything, "u1").Return(nil, common.ErrorUnauthorized)

	r := httptest.NewRequest(http.MethodGet, "/api/app/posts", nil)
	r.Header.Set("Authorization", "Bearer good")
	assert.Equal(t, http.StatusUnauthorized, f.do(r).Code)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByID", mock.Anything, "u1").Return(alice, nil)
	f.files.On("List", mock.Anything, "a@example.com").
		Return([]*models.File{{ID: "f2"}, {ID: "f1"}}, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/app/posts", nil)
	r.Header.Set("Authorization", "Bearer good")
	rec := f.do(r)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "f2", out[0]["id"])
}

func TestList_Empty(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByID", mock.Anything, "u1").Return(alice, nil)
	f.files.On("List", mock.Anything, "a@example.com").Return(nil, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/app/posts", nil)
	r.Header.Set("Authorization", "Bearer good")
	rec := f.do(r)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		filename string
		err      error
		code     int
	}{
		{"ok", "/api/app/uploads/song.mp3", "song.mp3", nil, http.StatusNoContent},
		{"escaped", "/api/app/uploads/my%20song.mp3", "my song.mp3", nil, http.StatusNoContent},
		{"missing", "/api/app/uploads/other.mp3", "other.mp3", common.ErrFileDoesNotExistForCurrentUser, http.StatusNotFound},
		{"db down", "/api/app/uploads/song.mp3", "song.mp3", errors.New("db down"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.users.On("GetByID", mock.Anything, "u1").Return(alice, nil)
			f.files.On("Delete", mock.Anything, "a@example.com", tt.filename).Return(tt.err)

			r := httptest.NewRequest(http.MethodDelete, tt.target, nil)
			r.Header.Set("Authorization", "Bearer good")
			assert.Equal(t, tt.code, f.do(r).Code)
		})
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	f.users.On("Register", mock.Anything, "a@example.com", "Alice", "password123").Return(alice, nil)

	rec := f.do(jsonRequest(http.MethodPost, "/api/auth/register", `{"email":"a@example.com","name":"Alice","password":"password123"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id":"u1"`)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegister_Validation(t *testing.T) {
	bodies := []string{
		`{"email":"not-an-email","name":"Alice","password":"password123"}`,
		`{"email":"a@example.com","name":"","password":"password123"}`,
		`{"email":"a@example.com","name":"Alice","password":"short"}`,
		`{"email":"a@example.com","name":"Alice","password":"password123","extra":1}`,
		`not json`,
	}
	for _, b := range bodies {
		f := newFixture(t)
		rec := f.do(jsonRequest(http.MethodPost, "/api/auth/register", b))
		assert.Equal(t, http.StatusBadRequest, rec.Code, b)
		assert.Equal(t, "invalid_request", decodeError(t, rec).Error)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.users.On("Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, common.ErrUserAlreadyExists)

	rec := f.do(jsonRequest(http.MethodPost, "/api/auth/register", `{"email":"a@example.com","name":"Alice","password":"password123"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.users.On("Login", mock.Anything, "a@example.com", "password123").
		Return(&services.TokenPair{AccessToken: "at", RefreshToken: "rt"}, nil)
	f.users.On("Login", mock.Anything, "a@example.com", "wrong-password").
		Return(nil, common.ErrorUnauthorized)

	rec := f.do(jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"a@example.com","password":"password123"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"access_token":"at","refresh_token":"rt"}`, rec.Body.String())

	rec = f.do(jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"a@example.com","password":"wrong-password"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh(t *testing.T) {
	good := strings.Repeat("ab", 32)
	f := newFixture(t)
	f.users.On("RefreshToken", mock.Anything, good).
		Return(&services.TokenPair{AccessToken: "at2", RefreshToken: "rt2"}, nil)

	rec := f.do(jsonRequest(http.MethodPost, "/api/auth/refresh", `{"refresh_token":"`+good+`"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(jsonRequest(http.MethodPost, "/api/auth/refresh", `{"refresh_token":"zz"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh_Expired(t *testing.T) {
	tok := strings.Repeat("cd", 32)
	f := newFixture(t)
	f.users.On("RefreshToken", mock.Anything, tok).Return(nil, common.ErrRefreshTokenExpired)

	rec := f.do(jsonRequest(http.MethodPost, "/api/auth/refresh", `{"refresh_token":"`+tok+`"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h := apihttp.NewHandler(apihttp.HandlerConfig{
		HealthCheck: func(context.Context) error { return errors.New("db down") },
	}, nil, nil, tokenGate{}, nil, nil, logging.Nop())
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tunevault_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	r := httptest.NewRequest(http.MethodOptions, "/api/app/uploads", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.Header.Set("Access-Control-Request-Headers", "Authorization")

	rec := f.do(r)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func sumCounter(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
