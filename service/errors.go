// Package service implements the remote-services core: the endpoint index,
// the export dispatcher, the listener hub, the in-memory imports registry and
// the peer watcher.
package service

import (
	"errors"
	"fmt"
)

const (
	// ErrInternal means an unexpected failure in this process or a backing
	// store.
	ErrInternal = "internal_error"
	// ErrEntityNotFound means a record or key is absent in a backing store.
	ErrEntityNotFound = "entity_not_found"
	// ErrUnknownEndpoint means no endpoint carries the requested UID.
	ErrUnknownEndpoint = "unknown_endpoint"
	// ErrDuplicateUID means an endpoint with the same UID is already indexed.
	ErrDuplicateUID = "duplicate_uid"
	// ErrBadParameter means that a provided parameter does not match the
	// declared contract.
	ErrBadParameter = "bad_parameter"
	// ErrUnknownMethod means the requested method does not exist on the
	// dispatched service instance.
	ErrUnknownMethod = "unknown_method"
)

// RemoteError is an error within the remote-services core, tagged with a
// machine-readable code so callers can branch without string matching.
type RemoteError struct {
	// Code is a machine-readable code.
	Code string `json:"code,omitempty"`
	// Message is a human-readable message.
	Message string `json:"message"`
	// Inner is a wrapped error that is never shown to API consumers.
	Inner error `json:"-"`
}

// NewRemoteError creates a new RemoteError.
func NewRemoteError(code string, message string, inner error) *RemoteError {
	return &RemoteError{
		Code:    code,
		Message: message,
		Inner:   inner,
	}
}

func NewInternalError(message string, inner error) *RemoteError {
	if remote := ToRemoteError(inner); remote != nil {
		return remote
	}
	return NewRemoteError(ErrInternal, message, inner)
}

func NewEntityNotFoundError(message string, inner error) *RemoteError {
	if remote := ToRemoteError(inner); remote != nil {
		return remote
	}
	return NewRemoteError(ErrEntityNotFound, message, inner)
}

func NewUnknownEndpointError(uid string) *RemoteError {
	return NewRemoteError(ErrUnknownEndpoint, fmt.Sprintf("unknown endpoint %q", uid), nil)
}

func NewDuplicateUIDError(uid string) *RemoteError {
	return NewRemoteError(ErrDuplicateUID, fmt.Sprintf("endpoint %q is already indexed", uid), nil)
}

func NewBadParameterError(message string, inner error) *RemoteError {
	if remote := ToRemoteError(inner); remote != nil {
		return remote
	}
	return NewRemoteError(ErrBadParameter, message, inner)
}

func NewUnknownMethodError(method string) *RemoteError {
	return NewRemoteError(ErrUnknownMethod, fmt.Sprintf("unknown method %q", method), nil)
}

func (e RemoteError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s %s: %v", e.Code, e.Message, e.Inner)
	}
	return fmt.Sprintf("%s %s", e.Code, e.Message)
}

// Unwrap the error returning the error's reason.
func (e RemoteError) Unwrap() error {
	return e.Inner
}

// ToRemoteError returns a pointer to a remote-services error, or nil if it is
// not one.
func ToRemoteError(err error) *RemoteError {
	var e *RemoteError
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsRemoteError reports whether err carries the given code.
func IsRemoteError(err error, code string) bool {
	if remote := ToRemoteError(err); remote != nil {
		return remote.Code == code
	}
	return false
}

func IsInternalError(err error) bool {
	return IsRemoteError(err, ErrInternal)
}

func IsEntityNotFoundError(err error) bool {
	return IsRemoteError(err, ErrEntityNotFound)
}

func IsUnknownEndpointError(err error) bool {
	return IsRemoteError(err, ErrUnknownEndpoint)
}

func IsDuplicateUIDError(err error) bool {
	return IsRemoteError(err, ErrDuplicateUID)
}

func IsBadParameterError(err error) bool {
	return IsRemoteError(err, ErrBadParameter)
}

func IsUnknownMethodError(err error) bool {
	return IsRemoteError(err, ErrUnknownMethod)
}
