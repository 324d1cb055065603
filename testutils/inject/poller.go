package inject

import (
	"context"
	"time"

	"go.viam.com/simtemp/monitor"
)

// Poller is an injected readiness poller.
type Poller struct {
	monitor.Poller
	RegisterFunc   func(interest monitor.Event) error
	UnregisterFunc func() error
	WaitFunc       func(ctx context.Context, timeout time.Duration) (monitor.Event, error)
	CloseFunc      func() error
}

// Register calls the injected Register or the real version.
func (p *Poller) Register(interest monitor.Event) error {
	if p.RegisterFunc == nil {
		if p.Poller == nil {
			return nil
		}
		return p.Poller.Register(interest)
	}
	return p.RegisterFunc(interest)
}

// Unregister calls the injected Unregister or the real version.
func (p *Poller) Unregister() error {
	if p.UnregisterFunc == nil {
		if p.Poller == nil {
			return nil
		}
		return p.Poller.Unregister()
	}
	return p.UnregisterFunc()
}

// Wait calls the injected Wait or the real version.
func (p *Poller) Wait(ctx context.Context, timeout time.Duration) (monitor.Event, error) {
	if p.WaitFunc == nil {
		return p.Poller.Wait(ctx, timeout)
	}
	return p.WaitFunc(ctx, timeout)
}

// Close calls the injected Close or the real version.
func (p *Poller) Close() error {
	if p.CloseFunc == nil {
		if p.Poller == nil {
			return nil
		}
		return p.Poller.Close()
	}
	return p.CloseFunc()
}
