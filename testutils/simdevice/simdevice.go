// Package simdevice is an in-process model of the simtemp driver for tests. It produces one sample
// per sampling period of its clock, keeps them in a ring that drops the oldest sample when full,
// and raises the alert class while the latest sample is above the threshold.
package simdevice

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sys/unix"

	"go.viam.com/simtemp/config"
	"go.viam.com/simtemp/device"
	"go.viam.com/simtemp/monitor"
	"go.viam.com/simtemp/sample"
)

// RingSlots is the size of the driver's sample ring. One slot always stays free, so at most
// RingSlots-1 samples are queued.
const RingSlots = 20

// Driver defaults.
const (
	DefaultThresholdMilliC = 45000
	DefaultSamplingPeriod  = 100 * time.Millisecond
	AmbientMilliC          = 42000
)

// DefaultTemperature jitters around AmbientMilliC by up to 500 mC, like the driver.
func DefaultTemperature(seq uint64) int32 {
	return AmbientMilliC + int32((seq*7919)%1000) - 500
}

// Option configures a Device.
type Option func(*Device)

// WithTemperatures replaces the temperature generator. seq counts samples from 0.
func WithTemperatures(temps func(seq uint64) int32) Option {
	return func(d *Device) {
		d.temps = temps
	}
}

// WithThreshold sets the initial threshold.
func WithThreshold(milliC int32) Option {
	return func(d *Device) {
		d.threshold = milliC
	}
}

// WithSamplingPeriod sets the initial sampling period.
func WithSamplingPeriod(period time.Duration) Option {
	return func(d *Device) {
		d.period = period
	}
}

// Device implements monitor.Source, monitor.Poller and configchannel.Controller.
type Device struct {
	clock clock.Clock
	temps func(seq uint64) int32
	kick  chan struct{}

	mu        sync.Mutex
	threshold int32
	period    time.Duration
	status    sample.Flags
	ring      [RingSlots]sample.Sample
	head      int
	tail      int
	lastTick  time.Time
	seq       uint64
	dropped   uint64

	interest   monitor.Event
	registered bool
	hungUp     bool
	closed     bool
}

// New returns a device whose first sample is due one sampling period after c.Now().
func New(c clock.Clock, opts ...Option) *Device {
	d := &Device{
		clock:     c,
		temps:     DefaultTemperature,
		kick:      make(chan struct{}, 1),
		threshold: DefaultThresholdMilliC,
		period:    DefaultSamplingPeriod,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.lastTick = c.Now()
	return d
}

// advance produces the samples that became due. Must hold mu.
func (d *Device) advance() {
	now := d.clock.Now()
	for !d.lastTick.Add(d.period).After(now) {
		d.lastTick = d.lastTick.Add(d.period)
		d.produce(d.lastTick)
	}
}

func (d *Device) produce(at time.Time) {
	temp := d.temps(d.seq)
	d.seq++

	flags := sample.FlagNewSample
	if temp > d.threshold {
		flags |= sample.FlagThresholdCrossed
		d.status |= sample.FlagThresholdCrossed
	} else {
		d.status &^= sample.FlagThresholdCrossed
	}

	next := (d.head + 1) % RingSlots
	if next == d.tail {
		d.tail = (d.tail + 1) % RingSlots
		d.dropped++
	}
	d.ring[d.head] = sample.Sample{TimestampNS: uint64(at.UnixNano()), TempMilliC: temp, Flags: flags}
	d.head = next
}

// ready returns the classes that are ready now. Must hold mu.
func (d *Device) ready() monitor.Event {
	var ev monitor.Event
	if d.head != d.tail {
		ev |= monitor.EventDataReady
	}
	if d.status.Has(sample.FlagThresholdCrossed) {
		ev |= monitor.EventAlertReady
	}
	if d.hungUp {
		ev |= monitor.EventHangup
	}
	return ev & (d.interest | monitor.EventError | monitor.EventHangup)
}

// ReadNonblocking pops the oldest queued sample.
func (d *Device) ReadNonblocking() ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, false, &device.ReadError{Kind: device.ReadClosed}
	}
	d.advance()
	if d.head == d.tail {
		return nil, false, nil
	}
	s := d.ring[d.tail]
	d.tail = (d.tail + 1) % RingSlots
	return s.Encode(), true, nil
}

// Register implements monitor.Poller.
func (d *Device) Register(interest monitor.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return monitor.ErrPollerClosed
	}
	d.interest = interest
	d.registered = true
	return nil
}

// Unregister implements monitor.Poller.
func (d *Device) Unregister() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interest = 0
	d.registered = false
	return nil
}

// Wait blocks on the device clock until a registered class is ready or the timeout elapses.
func (d *Device) Wait(ctx context.Context, timeout time.Duration) (monitor.Event, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, monitor.ErrPollerClosed
	}
	if !d.registered {
		d.mu.Unlock()
		return 0, monitor.ErrNotRegistered
	}
	var deadline time.Time
	if timeout >= 0 {
		deadline = d.clock.Now().Add(timeout)
	}

	for {
		d.advance()
		if ev := d.ready(); ev != 0 {
			d.mu.Unlock()
			return ev, nil
		}
		now := d.clock.Now()
		if !deadline.IsZero() && !now.Before(deadline) {
			d.mu.Unlock()
			return 0, nil
		}
		wake := d.lastTick.Add(d.period)
		if !deadline.IsZero() && deadline.Before(wake) {
			wake = deadline
		}
		timer := d.clock.Timer(wake.Sub(now))
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-d.kick:
			timer.Stop()
		case <-timer.C:
		}
		d.mu.Lock()
	}
}

// Close implements monitor.Poller. Reads fail with a closed error afterwards.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// WriteControl handles the driver's set control codes. Like the driver, it does not implement the
// mode control code.
func (d *Device) WriteControl(request uint32, value int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch request {
	case config.OpcodeSetThreshold:
		d.threshold = value
	case config.OpcodeSetSampling:
		if value <= 0 {
			return unix.EINVAL
		}
		d.advance()
		d.period = time.Duration(value) * time.Millisecond
	default:
		return unix.ENOTTY
	}
	return nil
}

// ReadControl handles the driver's status control code.
func (d *Device) ReadControl(request uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if request != config.OpcodeGetStatus {
		return 0, unix.ENOTTY
	}
	d.advance()
	return uint32(d.status), nil
}

// Hangup makes every later wait report the hangup class.
func (d *Device) Hangup() {
	d.mu.Lock()
	d.hungUp = true
	d.mu.Unlock()
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Threshold returns the current threshold.
func (d *Device) Threshold() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.threshold
}

// Dropped returns how many samples were overwritten before being read.
func (d *Device) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Queued returns how many samples are waiting to be read.
func (d *Device) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	return (d.head - d.tail + RingSlots) % RingSlots
}
