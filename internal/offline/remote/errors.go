package remote

import (
	"context"
	"errors"
	"fmt"
)

// Errors returned by API calls.
//
// Check them with errors.Is, or with the Is* helpers below:
//
//	if remote.IsUnauthorized(err) {
//	    // ask the user to sign in again
//	}
var (
	// ErrInvalidRequest is returned when the call itself was malformed:
	// a bad URL or a 400/404/409/422 response.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnauthorized is returned on a 401: the session is no longer valid.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDecode is returned when a response body does not match the
	// expected shape.
	ErrDecode = errors.New("failed to decode response")
)

// ServerError is an application-level failure: the server answered with an
// error status.
type ServerError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// NetworkError is a transport-level failure: timeout, refused connection,
// DNS or TLS failure, dropped connection. The server never answered.
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// Class is the reachability class of an API error.
type Class int

const (
	// ClassNone covers nil errors and failures that say nothing about the
	// server, such as a cancelled caller context.
	ClassNone Class = iota
	// ClassNetwork means the server could not be reached.
	ClassNetwork
	// ClassApplication means the server answered.
	ClassApplication
)

// String returns a human-readable representation of the class.
func (c Class) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassApplication:
		return "application"
	default:
		return "none"
	}
}

// Classify sorts err into a reachability class.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return ClassNetwork
	}
	if errors.Is(err, context.Canceled) {
		return ClassNone
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrDecode) {
		return ClassApplication
	}
	return ClassNone
}

// IsNetworkError returns true if err is a transport-level failure.
func IsNetworkError(err error) bool {
	return Classify(err) == ClassNetwork
}

// IsUnauthorized returns true if err means the session must be renewed.
func IsUnauthorized(err error) bool {
	return err != nil && errors.Is(err, ErrUnauthorized)
}

// IsApplicationError returns true if the server answered with an error.
func IsApplicationError(err error) bool {
	return Classify(err) == ClassApplication
}
