package monitor

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// A Poller waits for readiness on one descriptor. It holds at most one registration at a time.
type Poller interface {
	// Register sets the classes to wait for, replacing any earlier registration.
	Register(interest Event) error
	Unregister() error
	// Wait blocks until a registered class is ready, the timeout elapses or ctx is done. A
	// negative timeout waits indefinitely. A timeout returns a zero Event and a nil error.
	Wait(ctx context.Context, timeout time.Duration) (Event, error)
	Close() error
}

var (
	// ErrNotRegistered is returned by Wait when nothing is registered.
	ErrNotRegistered = errors.New("no interest registered")
	// ErrPollerClosed is returned once the poller is closed.
	ErrPollerClosed = errors.New("poller is closed")
)
