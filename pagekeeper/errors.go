package pagekeeper

import (
	"errors"
	"net/http"

	"github.com/hazyhaar/pagever/canon"
	"github.com/hazyhaar/pagever/pagekeeper/internal/ingest"
	"github.com/hazyhaar/pagever/pagekeeper/internal/store"
)

// Errors returned by the Keeper. Test with errors.Is.
var (
	ErrNotFound        = store.ErrNotFound
	ErrConflict        = store.ErrConflict
	ErrUnavailable     = store.ErrUnavailable
	ErrInvalidSnapshot = ingest.ErrInvalidSnapshot
	// ErrInvalidRequest rejects malformed query parameters.
	ErrInvalidRequest = errors.New("invalid request")
)

// StatusCode maps an error from the Keeper to an HTTP status.
func StatusCode(err error) int {
	var encErr *canon.EncodingError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidSnapshot), errors.Is(err, ErrInvalidRequest), errors.As(err, &encErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
