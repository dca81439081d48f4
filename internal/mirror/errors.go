package mirror

import "github.com/cockroachdb/errors"

// Request level failures. Handlers mark their errors with one of these and
// the result writer maps them to a status code.
var (
	ErrInvalidRange       = errors.New("invalid range header")
	ErrBadRequest         = errors.New("bad request")
	ErrNotFound           = errors.New("not found")
	ErrUnsatisfiableRange = errors.New("range not satisfiable")
	ErrUnauthorized       = errors.New("unauthorized")

	// ErrMisconfigured is raised when a route needs a component the server
	// was not configured with.
	ErrMisconfigured = errors.New("server misconfigured")
)
