// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package stakehub

import "strconv"

// Constants of the protocol.
const (
	// WeekSeconds length of a gauge period.
	WeekSeconds uint64 = 7 * 24 * 60 * 60

	// EpochStart the timestamp periods are counted from.
	EpochStart uint64 = 1595870400

	// BpsDenominator full scale of basis point weights.
	// Untyped so it compares against the various bps field widths.
	BpsDenominator = 10000

	// MaxPaginationLimit upper bound of query page sizes.
	MaxPaginationLimit = 30

	// DefaultPaginationLimit page size applied when none is requested.
	DefaultPaginationLimit = 10
)

// ClampLimit resolves an optional page size against the default and cap.
func ClampLimit(limit *uint32) int {
	if limit == nil {
		return DefaultPaginationLimit
	}
	if *limit > MaxPaginationLimit {
		return MaxPaginationLimit
	}
	if *limit == 0 {
		return DefaultPaginationLimit
	}
	return int(*limit)
}

// FormatUint renders v in decimal, a shorthand for event attributes.
func FormatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// Period converts a unix timestamp to a period number.
// Timestamps before the epoch map to period 0.
func Period(ts uint64) uint64 {
	if ts < EpochStart {
		return 0
	}
	return (ts - EpochStart) / WeekSeconds
}

// PeriodStart returns the unix timestamp at which the given period begins.
func PeriodStart(period uint64) uint64 {
	return EpochStart + period*WeekSeconds
}
