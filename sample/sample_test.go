package sample

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestDecode(t *testing.T) {
	raw := []byte{
		0x00, 0x10, 0x5e, 0x5f, 0x4d, 0xfa, 0x66, 0x18, // timestamp_ns
		0x38, 0xa4, 0x00, 0x00, // 42040 mC
		0x03, 0x00, 0x00, 0x00, // NEW_SAMPLE | THRESHOLD_CROSSED
	}
	s, err := Decode(raw)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.TimestampNS, test.ShouldEqual, uint64(0x1866fa4d5f5e1000))
	test.That(t, s.TempMilliC, test.ShouldEqual, int32(42040))
	test.That(t, s.Flags, test.ShouldEqual, FlagNewSample|FlagThresholdCrossed)
	test.That(t, s.TempC(), test.ShouldAlmostEqual, 42.04)
	test.That(t, s.IsAlert(), test.ShouldBeTrue)
}

func TestDecodeNegativeTemperature(t *testing.T) {
	s, err := Decode(Sample{TimestampNS: 1, TempMilliC: -12345, Flags: FlagNewSample}.Encode())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.TempMilliC, test.ShouldEqual, int32(-12345))
	test.That(t, s.TempC(), test.ShouldAlmostEqual, -12.345)
	test.That(t, s.IsAlert(), test.ShouldBeFalse)
}

func TestDecodeWrongLength(t *testing.T) {
	for _, length := range []int{0, 1, 15, 17, 32} {
		s, err := Decode(make([]byte, length))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, ErrMalformedRecord), test.ShouldBeTrue)
		test.That(t, s, test.ShouldResemble, Sample{})

		var malformed *MalformedRecordError
		test.That(t, errors.As(err, &malformed), test.ShouldBeTrue)
		test.That(t, malformed.Length, test.ShouldEqual, length)
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		raw := make([]byte, Size)
		rng.Read(raw)

		s, err := Decode(raw)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, s.Encode(), test.ShouldResemble, raw)
		test.That(t, s.AppendEncode([]byte{0xff}), test.ShouldResemble, append([]byte{0xff}, raw...))
	}
}

func TestIsAlertIgnoresOtherBits(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	flags := []uint32{0, 1, 2, 3, 4, 5, 6, 7, math.MaxUint32, math.MaxUint32 &^ 2}
	for i := 0; i < 1000; i++ {
		flags = append(flags, rng.Uint32())
	}
	for _, f := range flags {
		s := Sample{Flags: Flags(f)}
		test.That(t, s.IsAlert(), test.ShouldEqual, (f>>1)&1 == 1)
	}
}

func TestReservedFlagsPreserved(t *testing.T) {
	in := Sample{TimestampNS: 7, TempMilliC: 1, Flags: FlagNewSample | FlagError | 1<<31}
	out, err := Decode(in.Encode())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, in)
	test.That(t, out.Flags.Has(FlagError), test.ShouldBeTrue)
	test.That(t, out.Flags.String(), test.ShouldEqual, "0x80000005")
}

func TestFormatLine(t *testing.T) {
	for _, tc := range []struct {
		name     string
		sample   Sample
		expected string
	}{
		{
			"epoch",
			Sample{TimestampNS: 0, TempMilliC: 0},
			"1970-01-01T00:00:00.000Z temp=0.0C alert=0",
		},
		{
			"alert with milliseconds",
			Sample{
				TimestampNS: uint64(time.Date(2025, 9, 22, 20, 15, 4, 123456789, time.UTC).UnixNano()),
				TempMilliC:  44100,
				Flags:       FlagNewSample | FlagThresholdCrossed,
			},
			"2025-09-22T20:15:04.123Z temp=44.1C alert=1",
		},
		{
			"whole second keeps three digits",
			Sample{TimestampNS: 5 * uint64(time.Second), TempMilliC: 25000, Flags: FlagNewSample},
			"1970-01-01T00:00:05.000Z temp=25.0C alert=0",
		},
		{
			"negative temperature",
			Sample{TimestampNS: uint64(time.Millisecond), TempMilliC: -1550},
			"1970-01-01T00:00:00.001Z temp=-1.6C alert=0",
		},
		{
			"reserved bits do not raise the alert",
			Sample{TimestampNS: 0, TempMilliC: 20000, Flags: FlagNewSample | FlagError},
			"1970-01-01T00:00:00.000Z temp=20.0C alert=0",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.That(t, FormatLine(tc.sample), test.ShouldEqual, tc.expected)
			test.That(t, tc.sample.String(), test.ShouldEqual, tc.expected)
		})
	}
}

func TestFormatLineShape(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	stamps := []uint64{0, 1, 999_999, math.MaxInt64, math.MaxUint64}
	for i := 0; i < 200; i++ {
		stamps = append(stamps, rng.Uint64())
	}
	for _, ts := range stamps {
		line := FormatLine(Sample{TimestampNS: ts, TempMilliC: rng.Int31()})
		stamp, _, found := strings.Cut(line, " ")
		test.That(t, found, test.ShouldBeTrue)
		test.That(t, stamp, test.ShouldEndWith, "Z")
		dot := strings.LastIndex(stamp, ".")
		test.That(t, dot, test.ShouldBeGreaterThan, 0)
		test.That(t, len(stamp[dot+1:]), test.ShouldEqual, len("000Z"))
	}
}

func TestFormatLineAtForcesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	resolve := func(ns uint64) time.Time { return time.Unix(0, int64(ns)).In(loc) }
	line := FormatLineAt(Sample{TimestampNS: 0, TempMilliC: 1000}, resolve)
	test.That(t, line, test.ShouldEqual, "1970-01-01T00:00:00.000Z temp=1.0C alert=0")
}
