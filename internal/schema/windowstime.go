// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package schema

import "time"

// windowsEpoch is 1601-01-01T00:00:00Z, the base of a Windows FILETIME /
// ETW raw timestamp tick count (100-nanosecond intervals).
var windowsEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// windowsToUnixEpochSeconds is the number of seconds between windowsEpoch
// and the Unix epoch (1970-01-01T00:00:00Z). Converting through time.Unix
// rather than adding a time.Duration to windowsEpoch avoids overflowing
// int64 nanoseconds for any present-day tick count — a time.Duration can
// only span ~292 years.
const windowsToUnixEpochSeconds = 11644473600

// WindowsTimestamp converts a raw 100ns-tick Windows timestamp into a UTC
// time, preserving sub-second precision.
func WindowsTimestamp(ticks int64) time.Time {
	secs := ticks/10_000_000 - windowsToUnixEpochSeconds
	nsecs := (ticks % 10_000_000) * 100
	return time.Unix(secs, nsecs).UTC()
}

// WindowsTimestampRounded converts a raw Windows timestamp to UTC, dropping
// sub-second precision. Used where only second-level resolution matters.
func WindowsTimestampRounded(ticks int64) time.Time {
	secs := ticks/10_000_000 - windowsToUnixEpochSeconds
	return time.Unix(secs, 0).UTC()
}
