package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tunevault/internal/common"
	"github.com/dmitrijs2005/tunevault/internal/logging"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	_ = WriteJSON(w, code, ErrorResponse{Error: errCode, Message: message})
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}

// HandleError maps service errors onto status codes. Anything unrecognized
// is treated as a storage or transport failure.
func HandleError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	switch {
	case errors.Is(err, common.ErrFileAlreadyExistsForCurrentUser):
		WriteError(w, http.StatusConflict, "file_exists", "File already exists for current user")
	case errors.Is(err, common.ErrFileDoesNotExistForCurrentUser):
		WriteError(w, http.StatusNotFound, "file_not_found", "File does not exist for current user")
	case errors.Is(err, common.ErrUserAlreadyExists):
		WriteError(w, http.StatusConflict, "user_exists", "User already exists")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		WriteError(w, http.StatusUnauthorized, "unauthorized", "Refresh token expired")
	case errors.Is(err, common.ErrorUnauthorized):
		WriteError(w, http.StatusUnauthorized, "unauthorized", "")
	case errors.Is(err, common.ErrorValidation):
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "Service temporarily unavailable")
	}
}
