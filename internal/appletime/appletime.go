// Package appletime converts between Apple's chat.db timestamps and time.Time.
//
// chat.db stores dates as integer offsets from 2001-01-01 00:00:00 UTC.
// Current macOS versions use nanoseconds; very old databases stored seconds.
package appletime

import "time"

// Epoch is the reference point for Apple timestamps (2001-01-01 00:00:00 UTC)
var Epoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// DistantPast is returned for missing or non-positive timestamps.
var DistantPast = time.Time{}

// legacySecondsCutoff separates the two storage units. A nanosecond value
// below 1e11 would be a date in the first two minutes of 2001, while a seconds
// value above it would be thousands of years out.
const legacySecondsCutoff int64 = 100_000_000_000

// ToTime converts a raw chat.db date to a UTC time.Time.
// A nil, zero or negative raw value maps to DistantPast.
func ToTime(raw *int64) time.Time {
	if raw == nil {
		return DistantPast
	}
	return FromRaw(*raw)
}

// FromRaw is ToTime for a non-pointer value.
func FromRaw(raw int64) time.Time {
	if raw <= 0 {
		return DistantPast
	}
	if raw < legacySecondsCutoff {
		return Epoch.Add(time.Duration(raw) * time.Second)
	}
	// Duration arithmetic is integral, so this is exact at 1ns resolution.
	return Epoch.Add(time.Duration(raw))
}

// ToRaw converts t to nanoseconds since Epoch. Times at or before the epoch
// return 0, so the zero time round-trips to DistantPast.
func ToRaw(t time.Time) int64 {
	if t.IsZero() || !t.After(Epoch) {
		return 0
	}
	return int64(t.Sub(Epoch))
}

// ToUnix converts a raw chat.db date to Unix seconds, or 0 when missing.
func ToUnix(raw int64) int64 {
	t := FromRaw(raw)
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
