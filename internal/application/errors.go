package application

import "errors"

var (
	// ErrUnauthorized is returned when the caller presents no valid API token.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrInvalidCredentials is returned when a token does not match the configured hash.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrSourceUnavailable is returned when the session backend cannot be
	// reached and no earlier snapshot exists for the schedule.
	ErrSourceUnavailable = errors.New("application: session source unavailable")
	// ErrUploadFailed is returned when the import sink rejects or cannot receive a sheet.
	ErrUploadFailed = errors.New("application: import upload failed")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}
