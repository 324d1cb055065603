package monitor

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrStopped is returned by every call on a stopped monitor.
var ErrStopped = errors.New("monitor is stopped")

// ErrorKind says which unrecoverable condition stopped the monitor.
type ErrorKind int

const (
	// DeviceError is POLLERR or POLLNVAL on the device.
	DeviceError ErrorKind = iota
	// DeviceHangup is POLLHUP on the device.
	DeviceHangup
)

// A MonitorError reports an unrecoverable readiness condition. It is never retried.
type MonitorError struct {
	Kind ErrorKind
	Path string
}

func (e *MonitorError) Error() string {
	what := "error condition"
	if e.Kind == DeviceHangup {
		what = "hangup"
	}
	if e.Path == "" {
		return fmt.Sprintf("device reported %s", what)
	}
	return fmt.Sprintf("device %s reported %s", e.Path, what)
}
