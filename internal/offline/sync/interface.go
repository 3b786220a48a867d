package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/daycast/syncengine/internal/offline/schema"
)

// ErrBusy is returned by ProcessQueue when a drain is already running.
// The second trigger is dropped, not queued.
var ErrBusy = errors.New("drain already in progress")

// ErrNeverCreated is reported for an operation on a local item whose create
// or upload was abandoned; the item has no server record to apply it to.
var ErrNeverCreated = errors.New("item was never created on the server")

// Processor drains the pending-operation queue.
type Processor interface {
	// ProcessQueue replays queued operations in creation order.
	//
	// Only one drain runs at a time; a call made while another is running
	// returns ErrBusy immediately. The returned Result counts what happened
	// to each operation. An error is returned only if the queue cannot be
	// read.
	//
	// Example:
	//   result, err := processor.ProcessQueue(ctx)
	ProcessQueue(ctx context.Context) (*Result, error)

	// Draining reports whether a drain is running.
	Draining() bool

	// AuthExpired reports whether a drain stopped on an Unauthorized
	// response since the last ResetAuthExpired.
	AuthExpired() bool

	// ResetAuthExpired clears the auth-expired flag, e.g. after a new
	// token was stored.
	ResetAuthExpired()
}

// Listener receives drain events. Methods are called synchronously from
// the drain and must not block.
type Listener interface {
	// OperationAbandoned is called when an operation reached the retry
	// ceiling and was removed from the queue, and for each operation
	// dropped because the item it targets was never created.
	OperationAbandoned(op schema.PendingOperation, err error)

	// AuthExpired is called when a drain stops on an Unauthorized response.
	AuthExpired()

	// DrainComplete is called at the end of every drain.
	DrainComplete(result Result)
}

// Result summarizes one drain.
type Result struct {
	// Applied operations reached the server and were removed.
	Applied int `json:"applied"`

	// Failed operations had their retry count incremented.
	Failed int `json:"failed"`

	// Abandoned operations reached the retry ceiling, or targeted an item
	// whose create was abandoned, and were removed.
	Abandoned int `json:"abandoned"`

	// Skipped operations target an item whose create has not landed.
	Skipped int `json:"skipped"`

	// Remapped counts temporary IDs replaced by server IDs.
	Remapped int `json:"remapped"`

	// AuthHalted is set when the drain stopped on Unauthorized.
	AuthHalted bool `json:"auth_halted"`

	// NetworkHalted is set when the drain stopped on a network failure.
	NetworkHalted bool `json:"network_halted"`

	// Remaining is the queue length after the drain.
	Remaining int `json:"remaining"`
}

// Halted reports whether the drain stopped before the end of the queue.
func (r Result) Halted() bool {
	return r.AuthHalted || r.NetworkHalted
}

// String returns a one-line summary.
func (r Result) String() string {
	s := fmt.Sprintf("applied=%d failed=%d abandoned=%d skipped=%d remaining=%d",
		r.Applied, r.Failed, r.Abandoned, r.Skipped, r.Remaining)
	switch {
	case r.AuthHalted:
		s += " (stopped: unauthorized)"
	case r.NetworkHalted:
		s += " (stopped: network)"
	}
	return s
}
