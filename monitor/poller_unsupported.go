//go:build !linux

package monitor

import "github.com/pkg/errors"

// NewPoller is not supported on this platform: the driver only exists on linux.
func NewPoller(fd int) (Poller, error) {
	return nil, errors.New("readiness polling is only supported on linux")
}
