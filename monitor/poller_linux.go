//go:build linux

package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// pollRdNorm is POLLRDNORM, which x/sys/unix does not define for linux.
const pollRdNorm = 0x40

// classify maps the revents of the device descriptor to readiness classes. POLLPRI is the
// driver's threshold alert, the normal read classes mean a record is queued.
func classify(revents int16) Event {
	var ev Event
	if revents&unix.POLLPRI != 0 {
		ev |= EventAlertReady
	}
	if revents&(unix.POLLIN|pollRdNorm) != 0 {
		ev |= EventDataReady
	}
	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		ev |= EventError
	}
	if revents&unix.POLLHUP != 0 {
		ev |= EventHangup
	}
	return ev
}

func pollEvents(interest Event) int16 {
	var events int16
	if interest&EventDataReady != 0 {
		events |= unix.POLLIN | pollRdNorm
	}
	if interest&EventAlertReady != 0 {
		events |= unix.POLLPRI
	}
	return events
}

// pollPoller waits with poll(2) on the device descriptor and an eventfd. The eventfd is written
// when the wait's context is done so an indefinite wait can be interrupted.
type pollPoller struct {
	fd   int
	wake int

	mu         sync.Mutex
	interest   Event
	registered bool
	closed     bool
}

// NewPoller returns a poller for fd. The poller does not own fd.
func NewPoller(fd int) (Poller, error) {
	wake, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create wakeup eventfd")
	}
	return &pollPoller{fd: fd, wake: wake}, nil
}

func (p *pollPoller) Register(interest Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	p.interest = interest
	p.registered = true
	return nil
}

func (p *pollPoller) Unregister() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = false
	p.interest = 0
	return nil
}

func (p *pollPoller) signal() {
	var one [8]byte
	one[0] = 1
	// EAGAIN means the counter is already non-zero, which wakes the wait just as well.
	//nolint:errcheck
	unix.Write(p.wake, one[:])
}

func (p *pollPoller) clearWake() {
	var buf [8]byte
	//nolint:errcheck
	unix.Read(p.wake, buf[:])
}

func (p *pollPoller) Wait(ctx context.Context, timeout time.Duration) (Event, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPollerClosed
	}
	if !p.registered {
		p.mu.Unlock()
		return 0, ErrNotRegistered
	}
	interest := p.interest
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.clearWake()
	stop := context.AfterFunc(ctx, p.signal)
	defer stop()

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	fds := []unix.PollFd{
		{Fd: int32(p.fd), Events: pollEvents(interest)},
		{Fd: int32(p.wake), Events: unix.POLLIN},
	}
	for {
		ms := -1
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			ms = int((remaining + time.Millisecond - 1) / time.Millisecond)
		}

		fds[0].Revents, fds[1].Revents = 0, 0
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, errors.Wrap(err, "poll failed")
		}
		if n == 0 {
			return 0, nil
		}
		if fds[1].Revents != 0 {
			p.clearWake()
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if ev := classify(fds[0].Revents); ev != 0 {
			return ev & (interest | EventError | EventHangup), nil
		}
	}
}

func (p *pollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.registered = false
	return unix.Close(p.wake)
}
