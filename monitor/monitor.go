// Package monitor waits for readiness on the simtemp device and dispatches each wake-up. Alerts
// are always dispatched before the pending samples of the same wake-up are drained.
package monitor

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/simtemp/device"
	"go.viam.com/simtemp/logging"
	"go.viam.com/simtemp/sample"
)

// A Source yields raw records without blocking. *device.Handle is one.
type Source interface {
	ReadNonblocking() ([]byte, bool, error)
}

// State is the monitor's position in its wait loop.
type State int32

// Monitor states. Stopped is terminal.
const (
	Idle State = iota
	Waiting
	Dispatching
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Dispatching:
		return "dispatching"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Handlers receive dispatched events. Nil handlers are skipped.
type Handlers struct {
	OnAlert  func(ctx context.Context)
	OnSample func(ctx context.Context, s sample.Sample)
}

// Stats is a snapshot of the monitor's counters.
type Stats struct {
	Wakeups     uint64
	Timeouts    uint64
	Alerts      uint64
	Samples     uint64
	DrainAborts uint64
}

type counters struct {
	wakeups     atomic.Uint64
	timeouts    atomic.Uint64
	alerts      atomic.Uint64
	samples     atomic.Uint64
	drainAborts atomic.Uint64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock used to measure waits.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithPath names the device in errors and logs.
func WithPath(path string) Option {
	return func(m *Monitor) {
		m.path = path
	}
}

// A Monitor owns the poller of one device. It is used by one goroutine at a time; only State and
// Stats may be called concurrently.
type Monitor struct {
	src    Source
	poller Poller
	logger logging.Logger
	clock  clock.Clock
	path   string

	state      atomic.Int32
	registered Event
	counters   counters
}

// New returns an idle monitor reading from src and waiting on poller. The monitor takes
// ownership of poller.
func New(src Source, poller Poller, logger logging.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		src:    src,
		poller: poller,
		logger: logger,
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Stats returns the counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Wakeups:     m.counters.wakeups.Load(),
		Timeouts:    m.counters.timeouts.Load(),
		Alerts:      m.counters.alerts.Load(),
		Samples:     m.counters.samples.Load(),
		DrainAborts: m.counters.drainAborts.Load(),
	}
}

func (m *Monitor) stopped() bool {
	return m.State() == Stopped
}

// transition moves to next unless the monitor already stopped.
func (m *Monitor) transition(next State) {
	for {
		cur := m.state.Load()
		if State(cur) == Stopped {
			return
		}
		if m.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

// Stop unregisters the interest and moves to Stopped. It is safe to call more than once.
func (m *Monitor) Stop() {
	if State(m.state.Swap(int32(Stopped))) == Stopped {
		return
	}
	m.registered = 0
	if err := m.poller.Unregister(); err != nil {
		m.logger.Debugw("unregister failed", "error", err)
	}
	m.logger.Debug("monitor stopped")
}

// Close stops the monitor and closes its poller.
func (m *Monitor) Close() error {
	m.Stop()
	return m.poller.Close()
}

// Wait registers interest if it changed and waits once. A zero Event means the timeout elapsed.
// If ctx is done the monitor stops and ctx's error is returned.
func (m *Monitor) Wait(ctx context.Context, interest Event, timeout time.Duration) (Event, error) {
	if m.stopped() {
		return 0, ErrStopped
	}
	if err := ctx.Err(); err != nil {
		m.Stop()
		return 0, err
	}
	if interest != m.registered {
		if err := m.poller.Register(interest); err != nil {
			return 0, errors.Wrap(err, "cannot register interest")
		}
		m.registered = interest
	}

	m.transition(Waiting)
	start := m.clock.Now()
	ev, err := m.poller.Wait(ctx, timeout)
	m.transition(Idle)
	if err != nil {
		if ctx.Err() != nil {
			m.Stop()
			return 0, ctx.Err()
		}
		return 0, errors.Wrap(err, "wait failed")
	}

	m.counters.wakeups.Inc()
	if ev == 0 {
		m.counters.timeouts.Inc()
	}
	m.logger.Debugw("woke", "event", ev, "waited", m.clock.Since(start))
	return ev, nil
}

// Drain reads, decodes and delivers records until the device has none pending, and returns how
// many were delivered. A short read or a transient read failure ends the drain quietly, a
// malformed record ends it with a log line. Only a closed device is returned as an error.
func (m *Monitor) Drain(ctx context.Context, deliver func(sample.Sample)) (int, error) {
	return m.drain(ctx, 0, deliver)
}

// ReadOne reads at most one record, for callers that must consume exactly the record that woke
// them. A nil sample means nothing was pending or the read ended quietly.
func (m *Monitor) ReadOne(ctx context.Context) (*sample.Sample, error) {
	var got *sample.Sample
	_, err := m.drain(ctx, 1, func(s sample.Sample) {
		got = &s
	})
	return got, err
}

// drain delivers at most limit records, or all pending ones if limit is 0.
func (m *Monitor) drain(ctx context.Context, limit int, deliver func(sample.Sample)) (int, error) {
	if m.stopped() {
		return 0, ErrStopped
	}
	delivered := 0
	for limit == 0 || delivered < limit {
		raw, ok, err := m.src.ReadNonblocking()
		if err != nil {
			if kind, isRead := device.ReadErrorKindOf(err); isRead && kind == device.ReadClosed {
				return delivered, err
			}
			m.counters.drainAborts.Inc()
			m.logger.Debugw("drain stopped by read failure", "error", err)
			return delivered, nil
		}
		if !ok {
			return delivered, nil
		}

		s, err := sample.Decode(raw)
		if err != nil {
			m.counters.drainAborts.Inc()
			m.logger.Warnw("dropping malformed record", "error", err)
			return delivered, nil
		}
		m.counters.samples.Inc()
		delivered++
		if deliver != nil {
			deliver(s)
		}
		if ctx.Err() != nil {
			return delivered, nil
		}
	}
	return delivered, nil
}

// Dispatch runs the handlers for one wake-up: the alert first, then the drain of pending
// samples, then the error conditions which stop the monitor.
func (m *Monitor) Dispatch(ctx context.Context, ev Event, handlers Handlers) error {
	_, err := m.dispatch(ctx, ev, handlers, 0)
	return err
}

func (m *Monitor) dispatch(ctx context.Context, ev Event, handlers Handlers, limit int) (int, error) {
	if m.stopped() {
		return 0, ErrStopped
	}
	m.transition(Dispatching)
	defer m.transition(Idle)

	if ev&EventAlertReady != 0 {
		m.counters.alerts.Inc()
		if handlers.OnAlert != nil {
			handlers.OnAlert(ctx)
		}
	}

	delivered := 0
	if ev&EventDataReady != 0 {
		var err error
		delivered, err = m.drain(ctx, limit, func(s sample.Sample) {
			if handlers.OnSample != nil {
				handlers.OnSample(ctx, s)
			}
		})
		if err != nil {
			m.Stop()
			return delivered, err
		}
	}

	switch {
	case ev&EventError != 0:
		m.Stop()
		return delivered, &MonitorError{Kind: DeviceError, Path: m.path}
	case ev&EventHangup != 0:
		m.Stop()
		return delivered, &MonitorError{Kind: DeviceHangup, Path: m.path}
	}
	return delivered, nil
}

// ReadCount waits for data until n samples were delivered. A wait that times out is logged and
// waiting continues. Cancellation stops the monitor and is not an error.
func (m *Monitor) ReadCount(
	ctx context.Context,
	n int,
	perWaitTimeout time.Duration,
	deliver func(sample.Sample),
) (int, error) {
	handlers := Handlers{OnSample: func(_ context.Context, s sample.Sample) {
		if deliver != nil {
			deliver(s)
		}
	}}
	interest := EventDataReady | EventError | EventHangup

	total := 0
	for total < n {
		ev, err := m.Wait(ctx, interest, perWaitTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return total, nil
			}
			return total, err
		}
		if ev == 0 {
			m.logger.Infow("timed out waiting for a sample, still waiting",
				"timeout", perWaitTimeout, "received", total, "wanted", n)
			continue
		}

		delivered, err := m.dispatch(ctx, ev, handlers, n-total)
		total += delivered
		if err != nil {
			return total, err
		}
		if ctx.Err() != nil {
			m.Stop()
			return total, nil
		}
	}
	return total, nil
}

// Run waits indefinitely for alerts and samples until ctx is done or the device reports an
// error condition. The driver keeps the alert class asserted while the temperature stays above
// the threshold, so once an alert is dispatched it is left out of the interest until a drained
// sample no longer carries the threshold flag.
func (m *Monitor) Run(ctx context.Context, handlers Handlers) error {
	armed := true
	tracked := Handlers{
		OnAlert: func(ctx context.Context) {
			armed = false
			if handlers.OnAlert != nil {
				handlers.OnAlert(ctx)
			}
		},
		OnSample: func(ctx context.Context, s sample.Sample) {
			if !s.Flags.Has(sample.FlagThresholdCrossed) {
				armed = true
			}
			if handlers.OnSample != nil {
				handlers.OnSample(ctx, s)
			}
		},
	}

	for {
		interest := EventDataReady | EventError | EventHangup
		if armed {
			interest |= EventAlertReady
		}
		ev, err := m.Wait(ctx, interest, -1)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ev == 0 {
			continue
		}
		if err := m.Dispatch(ctx, ev, tracked); err != nil {
			return err
		}
		if ctx.Err() != nil {
			m.Stop()
			return nil
		}
	}
}
