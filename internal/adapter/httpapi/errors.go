package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/simaogato/pricesnap/internal/usecase/query"
)

// HTTPError carries the status code of a failed request
type HTTPError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError returns an error answered with code and message
func NewHTTPError(code int, message string) error {
	return &HTTPError{Code: code, Message: message}
}

// toHTTPError maps query and domain errors to status codes
func toHTTPError(err error) *HTTPError {
	var httpErr *HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.Is(err, query.ErrInvalidQuery):
		return &HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return &HTTPError{Code: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, query.ErrSeriesUnavailable):
		return &HTTPError{Code: http.StatusNotImplemented, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &HTTPError{Code: http.StatusGatewayTimeout, Message: err.Error()}
	default:
		return &HTTPError{Code: http.StatusInternalServerError, Message: "Internal Server Error"}
	}
}

// WriteError sends the error response as JSON
func WriteError(w http.ResponseWriter, err error) {
	httpErr := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.Code)
	_ = json.NewEncoder(w).Encode(httpErr)
}

func respond(w http.ResponseWriter, body interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
