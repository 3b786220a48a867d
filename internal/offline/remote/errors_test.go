package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassNone},
		{"network", &NetworkError{Cause: errors.New("connection refused")}, ClassNetwork},
		{"wrapped network", fmt.Errorf("sync: %w", &NetworkError{Cause: context.DeadlineExceeded}), ClassNetwork},
		{"server", &ServerError{Status: 500, Message: "boom"}, ClassApplication},
		{"unauthorized", fmt.Errorf("%w: expired", ErrUnauthorized), ClassApplication},
		{"invalid", fmt.Errorf("%w: missing", ErrInvalidRequest), ClassApplication},
		{"decode", fmt.Errorf("%w: eof", ErrDecode), ClassApplication},
		{"cancelled", context.Canceled, ClassNone},
		{"unknown", errors.New("something else"), ClassNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	if !IsUnauthorized(fmt.Errorf("%w: x", ErrUnauthorized)) {
		t.Error("IsUnauthorized should match wrapped ErrUnauthorized")
	}
	if IsUnauthorized(nil) {
		t.Error("IsUnauthorized(nil) should be false")
	}
	if !IsNetworkError(&NetworkError{Cause: errors.New("dns")}) {
		t.Error("IsNetworkError should match NetworkError")
	}
	if !IsApplicationError(&ServerError{Status: 503}) {
		t.Error("IsApplicationError should match ServerError")
	}

	netErr := &NetworkError{Cause: context.DeadlineExceeded}
	if !errors.Is(netErr, context.DeadlineExceeded) {
		t.Error("NetworkError should unwrap to its cause")
	}
}
