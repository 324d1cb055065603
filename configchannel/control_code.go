package configchannel

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"go.viam.com/simtemp/logging"
	"go.viam.com/simtemp/sample"
)

// ControlCodeBackend issues control calls carrying a 4-byte signed integer on the device
// descriptor.
type ControlCodeBackend struct {
	Device       Controller
	Opcodes      map[Attribute]uint32
	StatusOpcode uint32

	logger logging.Logger
}

// NewControlCodeBackend returns a backend issuing control calls on dev.
func NewControlCodeBackend(
	dev Controller,
	opcodes map[Attribute]uint32,
	statusOpcode uint32,
	logger logging.Logger,
) *ControlCodeBackend {
	return &ControlCodeBackend{Device: dev, Opcodes: opcodes, StatusOpcode: statusOpcode, logger: logger}
}

// Name returns "ioctl".
func (b *ControlCodeBackend) Name() string {
	return "ioctl"
}

func (b *ControlCodeBackend) fail(kind ErrorKind, attr Attribute, err error) error {
	return &ConfigError{Kind: kind, Attribute: attr, Backend: b.Name(), Err: err}
}

// Set issues the attribute's control code with value as payload.
func (b *ControlCodeBackend) Set(ctx context.Context, attr Attribute, value int64) error {
	if err := ctx.Err(); err != nil {
		return b.fail(Rejected, attr, err)
	}
	opcode, ok := b.Opcodes[attr]
	if !ok {
		return b.fail(NotFound, attr, errors.New("no control code configured"))
	}
	if value < math.MinInt32 || value > math.MaxInt32 {
		return b.fail(Rejected, attr, errors.Errorf("value %d does not fit in 32 bits", value))
	}

	if err := b.Device.WriteControl(opcode, int32(value)); err != nil {
		if errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.ENOENT) {
			return b.fail(NotFound, attr, err)
		}
		return b.fail(Rejected, attr, err)
	}
	b.logger.Debugw("control code issued", "attribute", attr, "opcode", opcode, "value", value)
	return nil
}

// Status returns the driver's status flags.
func (b *ControlCodeBackend) Status(ctx context.Context) (sample.Flags, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	value, err := b.Device.ReadControl(b.StatusOpcode)
	if err != nil {
		return 0, err
	}
	return sample.Flags(value), nil
}
