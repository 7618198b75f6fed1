package timestamp

import (
	"sync/atomic"
	"time"
)

const (
	// BinDigits is the number of low bits reserved for the per-millisecond counter.
	BinDigits = 12
	// OneMs is the distance between two consecutive milliseconds in timestamp units.
	OneMs = 1 << BinDigits
)

var value atomic.Int64

// Next returns a timestamp strictly greater than every timestamp previously
// returned in this process. The high bits hold wall-clock milliseconds, the low
// BinDigits bits count calls within the same millisecond.
func Next() int64 {
	for {
		base := time.Now().UnixMilli() << BinDigits
		maxValue := base + OneMs - 1

		for current := value.Load(); ; current = value.Load() {
			update := max(base, current+1)
			if update >= maxValue {
				// counter exhausted for this millisecond, wait for the clock
				break
			}
			if value.CompareAndSwap(current, update) {
				return update
			}
		}
		time.Sleep(time.Millisecond / 10)
	}
}

// Millis converts a timestamp back to unix milliseconds.
func Millis(ts int64) int64 {
	return ts >> BinDigits
}

// FromDuration converts a duration to timestamp units.
func FromDuration(d time.Duration) int64 {
	return d.Milliseconds() * OneMs
}
