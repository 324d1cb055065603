// Package device owns the descriptor of a simtemp character device. Reads never block: the
// readiness wait lives in the monitor package.
package device

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"go.viam.com/simtemp/logging"
	"go.viam.com/simtemp/sample"
)

// A Handle is one open descriptor to the device. The raw descriptor is kept instead of an
// *os.File so that the Go runtime poller never takes ownership of it.
type Handle struct {
	path   string
	logger logging.Logger

	mu sync.Mutex
	fd int
}

// Open opens the device read-only and non-blocking.
func Open(path string, logger logging.Logger) (*Handle, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		kind := OpenOther
		if errors.Is(err, unix.ENOENT) {
			kind = OpenNotFound
		}
		return nil, &OpenError{Kind: kind, Path: path, Err: err}
	}
	logger.Debugw("device opened", "path", path, "fd", fd)
	return &Handle{path: path, logger: logger, fd: fd}, nil
}

// Path returns the path the handle was opened with.
func (h *Handle) Path() string {
	return h.path
}

// Fd returns the descriptor, or -1 once closed.
func (h *Handle) Fd() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fd
}

// ReadNonblocking reads at most one record. It returns ok=false without an error when nothing
// is pending. A partial record is a ReadShortRead error and is not retried.
func (h *Handle) ReadNonblocking() ([]byte, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fd < 0 {
		return nil, false, &ReadError{Kind: ReadClosed}
	}

	buf := make([]byte, sample.Size)
	n, err := unix.Read(h.fd, buf)
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return nil, false, nil
	case err != nil:
		return nil, false, &ReadError{Kind: ReadIO, Err: err}
	case n == 0:
		// The driver returns 0 when it lost the race for the last record.
		return nil, false, nil
	case n < sample.Size:
		return nil, false, &ReadError{Kind: ReadShortRead, N: n}
	}
	return buf, true, nil
}

// WriteControl issues a control call that passes a 4-byte signed integer to the driver.
func (h *Handle) WriteControl(request uint32, value int32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fd < 0 {
		return ErrClosed
	}
	if err := ioctlSetInt32(h.fd, request, value); err != nil {
		return errors.Wrapf(err, "control call 0x%08X on %s", request, h.path)
	}
	return nil
}

// ReadControl issues a control call that reads a 4-byte unsigned integer from the driver.
func (h *Handle) ReadControl(request uint32) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fd < 0 {
		return 0, ErrClosed
	}
	value, err := ioctlGetUint32(h.fd, request)
	if err != nil {
		return 0, errors.Wrapf(err, "control call 0x%08X on %s", request, h.path)
	}
	return value, nil
}

// Status issues the driver's GET_STATUS control call and returns the current status flags.
func (h *Handle) Status(request uint32) (sample.Flags, error) {
	value, err := h.ReadControl(request)
	if err != nil {
		return 0, err
	}
	return sample.Flags(value), nil
}

// Close releases the descriptor. Closing an already closed handle is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fd < 0 {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = -1
	h.logger.Debugw("device closed", "path", h.path)
	return err
}
