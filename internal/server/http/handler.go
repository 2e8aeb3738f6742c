package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/tunevault/internal/common"
	"github.com/dmitrijs2005/tunevault/internal/logging"
	"github.com/dmitrijs2005/tunevault/internal/server/auth"
	"github.com/dmitrijs2005/tunevault/internal/server/metrics"
	"github.com/dmitrijs2005/tunevault/internal/server/models"
	"github.com/dmitrijs2005/tunevault/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
)

const (
	maxJSONBody = 1 << 20
	// multipartMemory is kept in memory; larger parts spill to temp files.
	multipartMemory = 8 << 20
	// multipartOverhead covers boundaries and part headers around the file.
	multipartOverhead = 1 << 20
	uploadField       = "file"
)

type FileService interface {
	Upload(ctx context.Context, owner services.OwnerInfo, filename, contentType string, size int64, body io.Reader) (*models.File, error)
	Delete(ctx context.Context, ownerEmail, filename string) error
	List(ctx context.Context, ownerEmail string) ([]*models.File, error)
}

type UserService interface {
	Register(ctx context.Context, email, name, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, token string) (*services.TokenPair, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type HandlerConfig struct {
	MaxUploadBytes     int64
	CORSAllowedOrigins []string
	// HealthCheck, when set, backs /healthz.
	HealthCheck func(ctx context.Context) error
}

// Handler wires the services into a chi router.
type Handler struct {
	config   HandlerConfig
	files    FileService
	users    UserService
	gate     Authorizer
	limiter  *RateLimiter
	metrics  *metrics.Metrics
	log      logging.Logger
	validate *validator.Validate
}

func NewHandler(config HandlerConfig, files FileService, users UserService, gate Authorizer,
	limiter *RateLimiter, m *metrics.Metrics, log logging.Logger) *Handler {
	return &Handler{
		config:   config,
		files:    files,
		users:    users,
		gate:     gate,
		limiter:  limiter,
		metrics:  m,
		log:      log.With("module", "http"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Router returns the HTTP handler for the whole API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(h.log))
	r.Use(Instrument(h.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.config.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if h.limiter != nil {
		r.Use(h.limiter.Middleware)
	}

	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
	})

	r.Route("/api/app", func(r chi.Router) {
		r.Use(RequireAuth(h.gate))
		r.Post("/uploads", h.handleUpload)
		r.Get("/posts", h.handleList)
		r.Delete("/uploads/{filename}", h.handleDelete)
	})

	return r
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,hexadecimal,len=64"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type fileResponse struct {
	ID               string    `json:"id"`
	OwnerName        string    `json:"owner_name"`
	OwnerEmail       string    `json:"owner_email"`
	OriginalFilename string    `json:"original_filename"`
	ObjectURL        string    `json:"object_url"`
	ContentType      string    `json:"content_type"`
	Size             int64     `json:"size"`
	CreatedAt        time.Time `json:"created_at"`
}

func toFileResponse(f *models.File) fileResponse {
	return fileResponse{
		ID:               f.ID,
		OwnerName:        f.OwnerName,
		OwnerEmail:       f.OwnerEmail,
		OriginalFilename: f.OriginalFilename,
		ObjectURL:        f.ObjectURL,
		ContentType:      f.ContentType,
		Size:             f.Size,
		CreatedAt:        f.CreatedAt,
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.config.HealthCheck != nil {
		if err := h.config.HealthCheck(r.Context()); err != nil {
			h.log.Warn(r.Context(), "health check failed", "error", err)
			WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "")
			return
		}
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(w, r, &req); err != nil {
		HandleError(w, r, h.log, err)
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		HandleError(w, r, h.log, err)
		return
	}

	_ = WriteJSON(w, http.StatusCreated, userResponse{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(w, r, &req); err != nil {
		HandleError(w, r, h.log, err)
		return
	}

	pair, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleError(w, r, h.log, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := h.decode(w, r, &req); err != nil {
		HandleError(w, r, h.log, err)
		return
	}

	pair, err := h.users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		HandleError(w, r, h.log, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	owner, err := h.owner(r)
	if err != nil {
		HandleError(w, r, h.log, err)
		return
	}

	if h.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusBadRequest, "file_too_large", fmt.Sprintf("File must be at most %d bytes", h.config.MaxUploadBytes))
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_request", "Expected multipart/form-data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	rec, err := h.files.Upload(r.Context(), owner, baseName(header), header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		HandleError(w, r, h.log, err)
		return
	}

	_ = WriteJSON(w, http.StatusCreated, toFileResponse(rec))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	owner, err := h.owner(r)
	if err != nil {
		HandleError(w, r, h.log, err)
		return
	}

	files, err := h.files.List(r.Context(), owner.Email)
	if err != nil {
		HandleError(w, r, h.log, err)
		return
	}

	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toFileResponse(f))
	}
	_ = WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, err := h.owner(r)
	if err != nil {
		HandleError(w, r, h.log, err)
		return
	}

	filename := chi.URLParam(r, "filename")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(filename); err == nil {
			filename = unescaped
		}
	}
	if err := h.validate.Var(filename, "required,max=255"); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid filename")
		return
	}

	if err := h.files.Delete(r.Context(), owner.Email, filename); err != nil {
		HandleError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// owner resolves the authenticated caller into the name and email that scope
// file operations. The email comes from the user record, never from the client.
func (h *Handler) owner(r *http.Request) (services.OwnerInfo, error) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return services.OwnerInfo{}, common.ErrorUnauthorized
	}
	user, err := h.users.GetByID(r.Context(), claims.ID)
	if err != nil {
		return services.OwnerInfo{}, err
	}
	return services.OwnerInfo{Name: user.Name, Email: user.Email}, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body", common.ErrorValidation)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %q", common.ErrorValidation, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	return nil
}

// baseName strips any client-side directory from the uploaded filename.
func baseName(h *multipart.FileHeader) string {
	name := h.Filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}
