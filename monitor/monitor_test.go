package monitor_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/simtemp/device"
	"go.viam.com/simtemp/logging"
	"go.viam.com/simtemp/monitor"
	"go.viam.com/simtemp/sample"
	"go.viam.com/simtemp/testutils/inject"
	"go.viam.com/simtemp/testutils/simdevice"
)

func record(temp int32, flags sample.Flags) []byte {
	return sample.Sample{TimestampNS: 1, TempMilliC: temp, Flags: flags}.Encode()
}

func collect(out *[]sample.Sample) func(sample.Sample) {
	return func(s sample.Sample) {
		*out = append(*out, s)
	}
}

func TestDrainReadsUntilEmpty(t *testing.T) {
	src := inject.QueuedSource(
		record(41000, sample.FlagNewSample),
		record(42000, sample.FlagNewSample),
		record(43000, sample.FlagNewSample),
	)
	m := monitor.New(src, &inject.Poller{}, logging.NewTestLogger(t))

	var got []sample.Sample
	n, err := m.Drain(context.Background(), collect(&got))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 3)
	test.That(t, src.Reads, test.ShouldEqual, 4)
	test.That(t, got[0].TempMilliC, test.ShouldEqual, int32(41000))
	test.That(t, got[2].TempMilliC, test.ShouldEqual, int32(43000))
	test.That(t, m.Stats().Samples, test.ShouldEqual, uint64(3))
}

func TestDrainStopsOnReadFailures(t *testing.T) {
	t.Run("short read", func(t *testing.T) {
		calls := 0
		src := &inject.Source{ReadNonblockingFunc: func() ([]byte, bool, error) {
			calls++
			if calls == 1 {
				return record(42000, sample.FlagNewSample), true, nil
			}
			return nil, false, &device.ReadError{Kind: device.ReadShortRead, N: 7}
		}}
		m := monitor.New(src, &inject.Poller{}, logging.NewTestLogger(t))

		var got []sample.Sample
		n, err := m.Drain(context.Background(), collect(&got))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, n, test.ShouldEqual, 1)
		test.That(t, got, test.ShouldHaveLength, 1)
		test.That(t, m.Stats().DrainAborts, test.ShouldEqual, uint64(1))
		test.That(t, m.State(), test.ShouldEqual, monitor.Idle)
	})

	t.Run("malformed record", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		src := inject.QueuedSource(make([]byte, 8), record(42000, sample.FlagNewSample))
		m := monitor.New(src, &inject.Poller{}, logger)

		n, err := m.Drain(context.Background(), nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, n, test.ShouldEqual, 0)
		test.That(t, logs.FilterMessageSnippet("malformed").Len(), test.ShouldEqual, 1)

		// The next cycle picks up where the aborted one stopped.
		n, err = m.Drain(context.Background(), nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, n, test.ShouldEqual, 1)
	})

	t.Run("closed", func(t *testing.T) {
		src := &inject.Source{ReadNonblockingFunc: func() ([]byte, bool, error) {
			return nil, false, &device.ReadError{Kind: device.ReadClosed}
		}}
		m := monitor.New(src, &inject.Poller{}, logging.NewTestLogger(t))

		_, err := m.Drain(context.Background(), nil)
		kind, ok := device.ReadErrorKindOf(err)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, kind, test.ShouldEqual, device.ReadClosed)
	})
}

func TestDispatchAlertBeforeData(t *testing.T) {
	src := inject.QueuedSource(
		record(46000, sample.FlagNewSample|sample.FlagThresholdCrossed),
		record(46100, sample.FlagNewSample|sample.FlagThresholdCrossed),
	)
	m := monitor.New(src, &inject.Poller{}, logging.NewTestLogger(t))

	var order []string
	err := m.Dispatch(context.Background(), monitor.EventDataReady|monitor.EventAlertReady, monitor.Handlers{
		OnAlert: func(context.Context) { order = append(order, "alert") },
		OnSample: func(_ context.Context, s sample.Sample) {
			order = append(order, s.String()[25:])
		},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, order, test.ShouldResemble, []string{"alert", "temp=46.0C alert=1", "temp=46.1C alert=1"})
	test.That(t, m.Stats().Alerts, test.ShouldEqual, uint64(1))
}

func TestDispatchErrorConditionsStop(t *testing.T) {
	for _, tc := range []struct {
		ev   monitor.Event
		kind monitor.ErrorKind
	}{
		{monitor.EventError, monitor.DeviceError},
		{monitor.EventHangup, monitor.DeviceHangup},
		{monitor.EventDataReady | monitor.EventHangup, monitor.DeviceHangup},
	} {
		t.Run(tc.ev.String(), func(t *testing.T) {
			unregistered := false
			poller := &inject.Poller{UnregisterFunc: func() error {
				unregistered = true
				return nil
			}}
			src := inject.QueuedSource(record(42000, sample.FlagNewSample))
			m := monitor.New(src, poller, logging.NewTestLogger(t), monitor.WithPath("/dev/simtemp"))

			var got []sample.Sample
			err := m.Dispatch(context.Background(), tc.ev, monitor.Handlers{
				OnSample: func(_ context.Context, s sample.Sample) { got = append(got, s) },
			})
			var monErr *monitor.MonitorError
			test.That(t, errors.As(err, &monErr), test.ShouldBeTrue)
			test.That(t, monErr.Kind, test.ShouldEqual, tc.kind)
			test.That(t, err.Error(), test.ShouldContainSubstring, "/dev/simtemp")
			test.That(t, m.State(), test.ShouldEqual, monitor.Stopped)
			test.That(t, unregistered, test.ShouldBeTrue)
			if tc.ev&monitor.EventDataReady != 0 {
				test.That(t, got, test.ShouldHaveLength, 1)
			}

			_, err = m.Wait(context.Background(), monitor.EventDataReady, 0)
			test.That(t, err, test.ShouldEqual, monitor.ErrStopped)
			test.That(t, m.Dispatch(context.Background(), monitor.EventDataReady, monitor.Handlers{}),
				test.ShouldEqual, monitor.ErrStopped)
		})
	}
}

func TestWaitRegistersOnlyOnChange(t *testing.T) {
	var registered []monitor.Event
	poller := &inject.Poller{
		RegisterFunc: func(interest monitor.Event) error {
			registered = append(registered, interest)
			return nil
		},
		WaitFunc: func(context.Context, time.Duration) (monitor.Event, error) {
			return 0, nil
		},
	}
	m := monitor.New(inject.QueuedSource(), poller, logging.NewTestLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ev, err := m.Wait(ctx, monitor.EventDataReady, time.Millisecond)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ev, test.ShouldEqual, monitor.Event(0))
	}
	_, err := m.Wait(ctx, monitor.EventAlertReady, time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, registered, test.ShouldResemble, []monitor.Event{monitor.EventDataReady, monitor.EventAlertReady})
	test.That(t, m.Stats().Timeouts, test.ShouldEqual, uint64(4))
}

func TestReadCountContinuesAfterTimeout(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	waits := 0
	poller := &inject.Poller{WaitFunc: func(context.Context, time.Duration) (monitor.Event, error) {
		waits++
		if waits <= 2 {
			return 0, nil
		}
		return monitor.EventDataReady, nil
	}}
	src := inject.QueuedSource(
		record(41000, sample.FlagNewSample),
		record(42000, sample.FlagNewSample),
		record(43000, sample.FlagNewSample),
		record(44000, sample.FlagNewSample),
	)
	m := monitor.New(src, poller, logger)

	var got []sample.Sample
	n, err := m.ReadCount(context.Background(), 3, 2*time.Second, collect(&got))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 3)
	test.That(t, got, test.ShouldHaveLength, 3)
	test.That(t, waits, test.ShouldEqual, 3)
	test.That(t, m.Stats().Timeouts, test.ShouldEqual, uint64(2))
	test.That(t, logs.FilterMessageSnippet("timed out").Len(), test.ShouldEqual, 2)

	// The fourth record stays queued.
	raw, ok, err := src.ReadNonblocking()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, raw, test.ShouldResemble, record(44000, sample.FlagNewSample))
}

func TestReadCountHangup(t *testing.T) {
	poller := &inject.Poller{WaitFunc: func(context.Context, time.Duration) (monitor.Event, error) {
		return monitor.EventHangup, nil
	}}
	m := monitor.New(inject.QueuedSource(), poller, logging.NewTestLogger(t))

	n, err := m.ReadCount(context.Background(), 5, time.Second, nil)
	test.That(t, n, test.ShouldEqual, 0)
	var monErr *monitor.MonitorError
	test.That(t, errors.As(err, &monErr), test.ShouldBeTrue)
	test.That(t, monErr.Kind, test.ShouldEqual, monitor.DeviceHangup)
}

func TestRunCancellation(t *testing.T) {
	unregistered := false
	poller := &inject.Poller{
		UnregisterFunc: func() error {
			unregistered = true
			return nil
		},
		WaitFunc: func(ctx context.Context, timeout time.Duration) (monitor.Event, error) {
			test.That(t, timeout, test.ShouldBeLessThan, 0)
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}
	m := monitor.New(inject.QueuedSource(), poller, logging.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	test.That(t, m.Run(ctx, monitor.Handlers{}), test.ShouldBeNil)
	test.That(t, m.State(), test.ShouldEqual, monitor.Stopped)
	test.That(t, unregistered, test.ShouldBeTrue)

	_, err := m.Wait(context.Background(), monitor.EventDataReady, 0)
	test.That(t, err, test.ShouldEqual, monitor.ErrStopped)
}

func TestRunDeliversMidDrainSampleOnCancel(t *testing.T) {
	poller := &inject.Poller{WaitFunc: func(context.Context, time.Duration) (monitor.Event, error) {
		return monitor.EventDataReady, nil
	}}
	src := inject.QueuedSource(
		record(41000, sample.FlagNewSample),
		record(42000, sample.FlagNewSample),
		record(43000, sample.FlagNewSample),
	)
	m := monitor.New(src, poller, logging.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	var got []sample.Sample
	err := m.Run(ctx, monitor.Handlers{OnSample: func(_ context.Context, s sample.Sample) {
		got = append(got, s)
		cancel()
	}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldHaveLength, 1)
	test.That(t, m.State(), test.ShouldEqual, monitor.Stopped)
}

// levelTriggeredDevice feeds one record per wait and keeps the alert class ready for as long as
// the latest fed record is hot, the way the driver keeps POLLPRI asserted.
func levelTriggeredDevice(feed [][]byte, cancel context.CancelFunc) (*inject.Source, *inject.Poller) {
	var ring [][]byte
	hot := false
	var interest monitor.Event
	waits := 0

	src := &inject.Source{ReadNonblockingFunc: func() ([]byte, bool, error) {
		if len(ring) == 0 {
			return nil, false, nil
		}
		next := ring[0]
		ring = ring[1:]
		return next, true, nil
	}}
	poller := &inject.Poller{
		RegisterFunc: func(ev monitor.Event) error {
			interest = ev
			return nil
		},
		WaitFunc: func(ctx context.Context, _ time.Duration) (monitor.Event, error) {
			waits++
			if len(feed) > 0 {
				ring = append(ring, feed[0])
				s, err := sample.Decode(feed[0])
				if err != nil {
					return 0, err
				}
				hot = s.IsAlert()
				feed = feed[1:]
			}
			var ev monitor.Event
			if hot {
				ev |= monitor.EventAlertReady
			}
			if len(ring) > 0 {
				ev |= monitor.EventDataReady
			}
			ev &= interest
			if ev == 0 || waits > 50 {
				cancel()
				return 0, ctx.Err()
			}
			return ev, nil
		},
	}
	return src, poller
}

func TestRunAlertsOncePerCrossing(t *testing.T) {
	hot := record(46000, sample.FlagNewSample|sample.FlagThresholdCrossed)
	cool := record(44000, sample.FlagNewSample)

	for _, tc := range []struct {
		name   string
		feed   [][]byte
		events []string
	}{
		{
			"stays hot",
			[][]byte{hot, hot, hot},
			[]string{"ALERT", "46000", "46000", "46000"},
		},
		{
			"cools and crosses again",
			[][]byte{hot, hot, cool, hot},
			[]string{"ALERT", "46000", "46000", "44000", "ALERT", "46000"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			src, poller := levelTriggeredDevice(tc.feed, cancel)
			m := monitor.New(src, poller, logging.NewTestLogger(t))

			var events []string
			err := m.Run(ctx, monitor.Handlers{
				OnAlert: func(context.Context) { events = append(events, "ALERT") },
				OnSample: func(_ context.Context, s sample.Sample) {
					events = append(events, strconv.Itoa(int(s.TempMilliC)))
				},
			})
			test.That(t, err, test.ShouldBeNil)
			test.That(t, events, test.ShouldResemble, tc.events)

			stats := m.Stats()
			test.That(t, stats.Alerts, test.ShouldBeLessThanOrEqualTo, stats.Samples)
			test.That(t, stats.Wakeups, test.ShouldEqual, uint64(len(tc.feed)))
		})
	}
}

func TestReadOneReadsOnce(t *testing.T) {
	src := inject.QueuedSource(
		record(41000, sample.FlagNewSample),
		record(42000, sample.FlagNewSample),
		record(43000, sample.FlagNewSample),
	)
	m := monitor.New(src, &inject.Poller{}, logging.NewTestLogger(t))

	got, err := m.ReadOne(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldNotBeNil)
	test.That(t, got.TempMilliC, test.ShouldEqual, int32(41000))
	test.That(t, src.Reads, test.ShouldEqual, 1)

	empty := inject.QueuedSource()
	m = monitor.New(empty, &inject.Poller{}, logging.NewTestLogger(t))
	got, err = m.ReadOne(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldBeNil)
	test.That(t, empty.Reads, test.ShouldEqual, 1)
}

func TestRunAgainstSimulatedDevice(t *testing.T) {
	mock := clock.NewMock()
	dev := simdevice.New(mock, simdevice.WithTemperatures(func(seq uint64) int32 {
		if seq%2 == 0 {
			return 46000
		}
		return 44000
	}))
	m := monitor.New(dev, dev, logging.NewTestLogger(t), monitor.WithClock(mock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var events []string
	handlers := monitor.Handlers{
		OnAlert: func(context.Context) { events = append(events, "ALERT") },
		OnSample: func(_ context.Context, s sample.Sample) {
			events = append(events, s.String()[25:])
			if len(events) >= 4 {
				cancel()
			}
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx, handlers)
	}()
	err := advanceUntilDone(mock, 10*time.Millisecond, done)
	test.That(t, err, test.ShouldBeNil)

	// Each wake-up sees one new sample. Hot samples raise the alert first.
	test.That(t, events[:3], test.ShouldResemble, []string{"ALERT", "temp=46.0C alert=1", "temp=44.0C alert=0"})
	test.That(t, m.State(), test.ShouldEqual, monitor.Stopped)
}

// advanceUntilDone keeps moving the mock clock until the goroutine under test finishes.
func advanceUntilDone(mock *clock.Mock, step time.Duration, done <-chan error) error {
	for {
		select {
		case err := <-done:
			return err
		default:
			mock.Add(step)
			time.Sleep(time.Millisecond)
		}
	}
}
