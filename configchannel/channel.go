// Package configchannel applies attribute changes to the simtemp driver. Two backends exist: one
// writes the driver's sysfs attribute files, the other issues control calls on the device
// descriptor. Which one is used is the caller's choice.
package configchannel

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/simtemp/config"
	"go.viam.com/simtemp/logging"
)

// An Attribute is a named driver setting.
type Attribute string

// The attributes the driver exposes.
const (
	Threshold      = Attribute(config.AttributeThreshold)
	SamplingPeriod = Attribute(config.AttributeSamplingPeriod)
	Mode           = Attribute(config.AttributeMode)
)

// Values of the Mode attribute.
const (
	ModeNormal int64 = 0
	ModeNoisy  int64 = 1
)

var modeNames = map[int64]string{ModeNormal: "normal", ModeNoisy: "noisy"}

// ParseAttribute maps a user facing name to an Attribute. Both the config names and the short
// names used on the command line are accepted.
func ParseAttribute(name string) (Attribute, error) {
	switch name {
	case string(Threshold), "threshold":
		return Threshold, nil
	case string(SamplingPeriod), "sampling", "sampling_ms":
		return SamplingPeriod, nil
	case string(Mode):
		return Mode, nil
	}
	return "", errors.Errorf("unknown attribute %q, expected one of %v", name, config.KnownAttributes)
}

// ParseMode accepts either a mode name or its numeric value.
func ParseMode(value string) (int64, bool) {
	for num, name := range modeNames {
		if name == value {
			return num, true
		}
	}
	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	_, ok := modeNames[num]
	return num, ok
}

// A Channel applies one attribute change per call. The device is the source of truth: nothing
// is cached and nothing is retried.
type Channel interface {
	Set(ctx context.Context, attr Attribute, value int64) error
	Name() string
}

// Controller is the part of the device handle the control code backend needs.
type Controller interface {
	WriteControl(request uint32, value int32) error
	ReadControl(request uint32) (uint32, error)
}

// New returns the backend selected by the config. dev is only used by the control code backend.
func New(cfg *config.Config, dev Controller, logger logging.Logger) (Channel, error) {
	switch cfg.Backend {
	case config.BackendAttributeFile:
		conf, err := cfg.AttributeFileConfig()
		if err != nil {
			return nil, err
		}
		return NewAttributeFileBackend(conf.BaseDir, toAttributeMap(conf.Files), logger), nil
	case config.BackendControlCode:
		if dev == nil {
			return nil, errors.New("the ioctl backend needs an open device")
		}
		conf, err := cfg.ControlCodeConfig()
		if err != nil {
			return nil, err
		}
		return NewControlCodeBackend(dev, toAttributeMap(conf.Opcodes), conf.StatusOpcode, logger), nil
	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}
}

func toAttributeMap[V any](in map[string]V) map[Attribute]V {
	return lo.MapKeys(in, func(_ V, name string) Attribute {
		return Attribute(name)
	})
}
