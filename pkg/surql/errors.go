package surql

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReference matches every *InvalidReferenceError via errors.Is.
	ErrInvalidReference = errors.New("invalid record reference")
	// ErrInvalidPayload matches every *InvalidPayloadError via errors.Is.
	ErrInvalidPayload = errors.New("invalid edge payload")
)

// InvalidReferenceError reports a record reference or identifier that does not
// have the required shape. It is always raised before any statement is issued.
type InvalidReferenceError struct {
	// Role names the argument that was rejected (source, destination, edge table...).
	Role   string
	Value  string
	Reason string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Role, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidReference) hold.
func (e *InvalidReferenceError) Is(target error) bool {
	return target == ErrInvalidReference
}

// InvalidPayloadError reports an edge attribute that cannot be encoded safely.
type InvalidPayloadError struct {
	Key    string
	Reason string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid payload attribute %q: %s", e.Key, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidPayload) hold.
func (e *InvalidPayloadError) Is(target error) bool {
	return target == ErrInvalidPayload
}

// StoreError wraps a failure returned by the underlying store driver
// (connectivity, timeout, constraint violation...). Store adapters produce it;
// controllers pass it through untouched.
type StoreError struct {
	Op        string
	Statement string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the driver error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is, or wraps, a *StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
