package scraper

import (
	"errors"
	"fmt"
	"net/http"

	infraerrors "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/errors"
)

// TransportError reports a request that never produced a usable response:
// network failures, timeouts, and error statuses without a parseable body.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsUnimplemented reports whether the backend answered 404 or 405, meaning the
// endpoint does not exist on this backend version.
func IsUnimplemented(err error) bool {
	code, ok := infraerrors.GetHTTPStatusCode(err)
	return ok && (code == http.StatusNotFound || code == http.StatusMethodNotAllowed)
}

// StatusCode returns the HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	return infraerrors.GetHTTPStatusCode(err)
}
