package repository

import (
	"errors"
	"fmt"
)

// ErrRequiresNetwork is matched by every error returned for an operation
// that has no offline path.
var ErrRequiresNetwork = errors.New("operation requires network")

// OfflineError is returned when an online-only operation is attempted while
// the server is not operational. Message is suitable for showing to a user.
type OfflineError struct {
	Message string
}

func (e *OfflineError) Error() string {
	return e.Message
}

// Is reports whether target is ErrRequiresNetwork.
func (e *OfflineError) Is(target error) bool {
	return target == ErrRequiresNetwork
}

func offline(format string, args ...any) error {
	return &OfflineError{Message: fmt.Sprintf(format, args...)}
}

// IsOffline reports whether err was returned because the server was not
// reachable.
func IsOffline(err error) bool {
	return errors.Is(err, ErrRequiresNetwork)
}
