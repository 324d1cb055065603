// Package sample decodes the fixed-size binary record produced by the simtemp device and renders
// the canonical output line consumed by downstream scripts.
package sample

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Size is the length in bytes of one wire record: u64 timestamp_ns, i32 temp_mC, u32 flags,
// little-endian with no padding.
const Size = 16

// Flags is the bitmask carried by every record. Bits other than the named ones are reserved and
// are preserved, never rejected.
type Flags uint32

const (
	// FlagNewSample marks a freshly produced sample.
	FlagNewSample Flags = 1 << 0
	// FlagThresholdCrossed marks a sample whose temperature crossed the configured threshold.
	FlagThresholdCrossed Flags = 1 << 1
	// FlagError is reserved by the driver for reporting device errors.
	FlagError Flags = 1 << 2
)

// Has reports whether every bit of flag is set.
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

func (f Flags) String() string {
	return fmt.Sprintf("0x%X", uint32(f))
}

// ErrMalformedRecord is matched by every decode failure.
var ErrMalformedRecord = errors.New("malformed sample record")

// MalformedRecordError is returned when a buffer is not exactly one record long.
type MalformedRecordError struct {
	Length int
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s: got %d bytes, want %d", ErrMalformedRecord, e.Length, Size)
}

// Is makes errors.Is(err, ErrMalformedRecord) hold.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// A Sample is one decoded device record.
type Sample struct {
	TimestampNS uint64
	TempMilliC  int32
	Flags       Flags
}

// Decode parses exactly one wire record. Any other length is an error and nothing is decoded.
func Decode(b []byte) (Sample, error) {
	if len(b) != Size {
		return Sample{}, &MalformedRecordError{Length: len(b)}
	}
	return Sample{
		TimestampNS: binary.LittleEndian.Uint64(b[0:8]),
		TempMilliC:  int32(binary.LittleEndian.Uint32(b[8:12])),
		Flags:       Flags(binary.LittleEndian.Uint32(b[12:16])),
	}, nil
}

// AppendEncode appends the wire form of s to dst.
func (s Sample) AppendEncode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, s.TimestampNS)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(s.TempMilliC))
	return binary.LittleEndian.AppendUint32(dst, uint32(s.Flags))
}

// Encode returns the wire form of s.
func (s Sample) Encode() []byte {
	return s.AppendEncode(make([]byte, 0, Size))
}

// TempC returns the temperature in degrees Celsius.
func (s Sample) TempC() float64 {
	return float64(s.TempMilliC) / 1000.0
}

// IsAlert reports whether the sample crossed the threshold.
func (s Sample) IsAlert() bool {
	return s.Flags&FlagThresholdCrossed != 0
}

func (s Sample) String() string {
	return FormatLine(s)
}
