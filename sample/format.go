package sample

import (
	"strconv"
	"time"
)

// lineTimeFormat always renders three fractional digits and a literal Z.
const lineTimeFormat = "2006-01-02T15:04:05.000Z"

// A TimeResolver maps a device timestamp to wall-clock time.
type TimeResolver func(timestampNS uint64) time.Time

// EpochResolver treats the device timestamp as nanoseconds since the Unix epoch. The driver
// stamps samples with the real-time clock, so this is exact for it, and only an approximation for
// devices using a monotonic clock.
func EpochResolver(timestampNS uint64) time.Time {
	return time.Unix(0, int64(timestampNS))
}

// FormatLine renders the canonical output line,
// e.g. "2025-09-22T20:15:04.123Z temp=44.1C alert=1".
func FormatLine(s Sample) string {
	return FormatLineAt(s, EpochResolver)
}

// FormatLineAt is FormatLine with a caller supplied timestamp resolver. The output is always in
// UTC regardless of the location of the resolved time.
func FormatLineAt(s Sample, resolve TimeResolver) string {
	buf := make([]byte, 0, 48)
	buf = resolve(s.TimestampNS).UTC().AppendFormat(buf, lineTimeFormat)
	buf = append(buf, " temp="...)
	buf = strconv.AppendFloat(buf, s.TempC(), 'f', 1, 64)
	buf = append(buf, "C alert="...)
	if s.IsAlert() {
		buf = append(buf, '1')
	} else {
		buf = append(buf, '0')
	}
	return string(buf)
}
