package identity

import "errors"

var (
	ErrNotFound             = errors.New("person not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidClinicianType = errors.New("invalid clinician type")
	ErrUnknownEmail         = errors.New("unknown email address")
	ErrInvalidPassword      = errors.New("invalid password")
	ErrAlreadyLoggedIn      = errors.New("user already logged in")
	ErrAlreadyLoggedOut     = errors.New("user already logged out")
)

// ValidationError reports a rejected registration or login field. Message is
// returned to the client verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}
