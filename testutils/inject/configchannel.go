package inject

import (
	"context"

	"go.viam.com/simtemp/configchannel"
)

// Channel is an injected ConfigChannel.
type Channel struct {
	configchannel.Channel
	SetFunc  func(ctx context.Context, attr configchannel.Attribute, value int64) error
	NameFunc func() string
}

// Set calls the injected Set or the real version.
func (c *Channel) Set(ctx context.Context, attr configchannel.Attribute, value int64) error {
	if c.SetFunc == nil {
		return c.Channel.Set(ctx, attr, value)
	}
	return c.SetFunc(ctx, attr, value)
}

// Name calls the injected Name or the real version.
func (c *Channel) Name() string {
	if c.NameFunc == nil {
		if c.Channel == nil {
			return "injected"
		}
		return c.Channel.Name()
	}
	return c.NameFunc()
}

// Controller is an injected device control surface.
type Controller struct {
	configchannel.Controller
	WriteControlFunc func(request uint32, value int32) error
	ReadControlFunc  func(request uint32) (uint32, error)
}

// WriteControl calls the injected WriteControl or the real version.
func (c *Controller) WriteControl(request uint32, value int32) error {
	if c.WriteControlFunc == nil {
		return c.Controller.WriteControl(request, value)
	}
	return c.WriteControlFunc(request, value)
}

// ReadControl calls the injected ReadControl or the real version.
func (c *Controller) ReadControl(request uint32) (uint32, error) {
	if c.ReadControlFunc == nil {
		return c.Controller.ReadControl(request)
	}
	return c.ReadControlFunc(request)
}
