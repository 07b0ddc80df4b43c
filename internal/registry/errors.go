package registry

import (
	"errors"
	"fmt"
)

// TransportError means the registry could not be reached at all.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport error: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a non-2xx answer from the registry (404 is NotFoundError).
type ProtocolError struct {
	Op         string
	StatusCode int
	Message    string
	Body       string
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: registry returned %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: registry returned %d", e.Op, e.StatusCode)
}

// NotFoundError means the registry has no entry for the id.
type NotFoundError struct {
	ID      string
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("service %q not found: %s", e.ID, e.Message)
	}
	return fmt.Sprintf("service %q not found", e.ID)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is or wraps a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// apiError is the error body the registry sends with failed requests.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
