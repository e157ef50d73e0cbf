package quiver

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Client operations.
var (
	// ErrUnknownEndpoint is returned when an operation names an endpoint
	// that was never defined on the client.
	ErrUnknownEndpoint = errors.New("unknown endpoint")

	// ErrEndpointExists is returned by DefineQuery and DefineMutation when
	// the name is already taken.
	ErrEndpointExists = errors.New("endpoint already defined")

	// ErrClientClosed is returned by operations invoked after Close.
	ErrClientClosed = errors.New("client is closed")

	// ErrNoEntry is returned when an operation requires a live cache entry
	// and none exists for the key (for example awaiting an entry that was
	// evicted mid-wait).
	ErrNoEntry = errors.New("no cache entry for key")

	// ErrMutation is returned by query-only operations (Refetch,
	// UpdateArgs) invoked on a mutation handle.
	ErrMutation = errors.New("operation not supported on mutations")
)

// TransportError marks a dispatch that failed before producing a usable
// result: network failure, timeout, malformed response body. The entry
// settles as rejected and the underlying cause is preserved for
// errors.Is / errors.As inspection.
type TransportError struct {
	// Endpoint that was being dispatched.
	Endpoint string

	// RequestID of the failed dispatch.
	RequestID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure on %s (request %s): %v", e.Endpoint, e.RequestID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError marks a dispatch whose call completed but whose result
// was rejected by the endpoint: the prepare hook failed, or the validate
// predicate refused the response. The entry settles as rejected.
type ValidationError struct {
	// Endpoint that was being dispatched.
	Endpoint string

	// RequestID of the failed dispatch.
	RequestID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failure on %s (request %s): %v", e.Endpoint, e.RequestID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsTransportError checks if an error is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
