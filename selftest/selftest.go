// Package selftest checks the driver's threshold alert end to end: it lowers the threshold below
// the ambient temperature and expects the alert class within a fixed window.
package selftest

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/simtemp/config"
	"go.viam.com/simtemp/configchannel"
	"go.viam.com/simtemp/logging"
	"go.viam.com/simtemp/monitor"
	"go.viam.com/simtemp/sample"
)

// Verdict is the outcome of a self-test.
type Verdict int

// The two verdicts. Fail is the zero value.
const (
	Fail Verdict = iota
	Pass
)

func (v Verdict) String() string {
	if v == Pass {
		return "PASS"
	}
	return "FAIL"
}

// ExitCode is the process exit code for the verdict.
func (v Verdict) ExitCode() int {
	if v == Pass {
		return 0
	}
	return 1
}

// Result describes one self-test run.
type Result struct {
	Verdict Verdict
	Elapsed time.Duration
	// Event is what the wait observed, zero on timeout.
	Event monitor.Event
	// Sample is the record consumed after the alert, if the clearing read got one.
	Sample *sample.Sample
}

// A Harness runs the self-test against one channel and monitor.
type Harness struct {
	Channel   configchannel.Channel
	Monitor   *monitor.Monitor
	Threshold int32
	Timeout   time.Duration
	Clock     clock.Clock

	logger logging.Logger
}

// New returns a harness with the default threshold and timeout.
func New(channel configchannel.Channel, mon *monitor.Monitor, logger logging.Logger) *Harness {
	return &Harness{
		Channel:   channel,
		Monitor:   mon,
		Threshold: config.DefaultTestThresholdMC,
		Timeout:   config.DefaultTestTimeoutMs * time.Millisecond,
		Clock:     clock.New(),
		logger:    logger,
	}
}

// Run applies the test threshold, waits once for the alert and reports the verdict. The verdict
// only depends on whether the alert was observed in time. A failed configuration is a FAIL with
// the configuration error returned alongside.
func (h *Harness) Run(ctx context.Context) (Result, error) {
	start := h.Clock.Now()
	result := Result{Verdict: Fail}

	if err := h.Channel.Set(ctx, configchannel.Threshold, int64(h.Threshold)); err != nil {
		result.Elapsed = h.Clock.Since(start)
		return result, errors.Wrapf(err, "cannot set test threshold %d mC", h.Threshold)
	}
	h.logger.Infow("threshold set, waiting for alert",
		"threshold_mc", h.Threshold, "backend", h.Channel.Name(), "timeout", h.Timeout)

	ev, err := h.Monitor.Wait(ctx, monitor.EventAlertReady|monitor.EventError|monitor.EventHangup, h.Timeout)
	result.Event = ev
	result.Elapsed = h.Clock.Since(start)
	if err != nil {
		return result, err
	}

	if ev&monitor.EventAlertReady == 0 {
		if ev == 0 {
			h.logger.Infow("no alert before timeout", "elapsed", result.Elapsed)
			return result, nil
		}
		return result, h.Monitor.Dispatch(ctx, ev&(monitor.EventError|monitor.EventHangup), monitor.Handlers{})
	}

	result.Verdict = Pass
	// Clear the record that raised the alert. Any failure here does not change the verdict.
	smp, err := h.Monitor.ReadOne(ctx)
	if err != nil {
		h.logger.Debugw("clearing read failed", "error", err)
	}
	result.Sample = smp
	h.logger.Infow("alert observed", "event", ev, "elapsed", result.Elapsed)
	return result, nil
}
