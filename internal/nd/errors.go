package nd

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is matched by an APIError carrying a 404.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized is matched by an APIError carrying a 401 or 403.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnsupportedMethod is returned by Write for anything but POST and DELETE.
	ErrUnsupportedMethod = errors.New("unsupported write method")
)

// APIError is a non-2xx response from the management API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: unexpected status code %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is lets callers match APIError against the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
