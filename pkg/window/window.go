// Package window slices a bounded time interval out of a record for the
// scrolling live view. Each channel is cut on its own time axis with binary
// search, so a request costs O(log n) per channel plus the samples actually
// inside the window, never a scan of the whole record.
package window

import (
	"sort"

	"physio-replay/pkg/record"
)

// DefaultScaleMin and DefaultScaleMax are the display range handed out when
// a window holds no samples, so an empty channel still renders a flat axis.
const (
	DefaultScaleMin = -1.0
	DefaultScaleMax = 1.0
)

// ChannelWindow carries one channel's samples inside the window together
// with the display range the canvas should map them onto.
type ChannelWindow struct {
	Label    string    `json:"label"`
	Times    []float64 `json:"times"`
	Values   []float64 `json:"values"`
	ScaleMin float64   `json:"scaleMin"`
	ScaleMax float64   `json:"scaleMax"`
}

// Result is the ephemeral per-request output: the effective bounds plus one
// entry per channel. Truncated reports that the record ended before the
// requested window length was filled.
type Result struct {
	WindowStart float64                  `json:"windowStart"`
	WindowEnd   float64                  `json:"windowEnd"`
	Truncated   bool                     `json:"truncated"`
	Channels    map[string]ChannelWindow `json:"channels"`
}

// Extract returns every channel's native samples with timestamps in
// [offset, windowEnd) where windowEnd = min(offset+windowLen, duration).
// Channels are never resampled onto a shared grid; a channel with no
// samples in range degrades to empty slices instead of failing the window.
func Extract(rec *record.ChannelRecord, offset, windowLen float64) Result {
	windowEnd := offset + windowLen
	if windowEnd > rec.Duration {
		windowEnd = rec.Duration
	}

	res := Result{
		WindowStart: offset,
		WindowEnd:   windowEnd,
		Truncated:   windowEnd < offset+windowLen,
		Channels:    make(map[string]ChannelWindow, len(rec.Channels)),
	}

	for id, series := range rec.Channels {
		lo, hi := searchRange(series.Times, offset, windowEnd)
		times := series.Times[lo:hi]
		values := series.Values[lo:hi]
		min, max := Scale(values)
		res.Channels[id] = ChannelWindow{
			Label:    series.Label,
			Times:    times,
			Values:   values,
			ScaleMin: min,
			ScaleMax: max,
		}
	}

	return res
}

// searchRange locates the half-open index range of samples with
// start <= t < end. Times are strictly increasing per the record invariant.
func searchRange(times []float64, start, end float64) (int, int) {
	lo := sort.Search(len(times), func(i int) bool { return times[i] >= start })
	hi := sort.Search(len(times), func(i int) bool { return times[i] >= end })
	if hi < lo {
		hi = lo // end < start happens when the cursor overruns a short record
	}
	return lo, hi
}

// Scale computes the display range from the window's own samples, so the
// view adapts as it scrolls instead of being pinned to the record extremes.
// Empty input yields the fixed default range; a single sample is widened by
// one unit each way so a flat channel keeps visible headroom.
func Scale(values []float64) (float64, float64) {
	if len(values) == 0 {
		return DefaultScaleMin, DefaultScaleMax
	}
	if len(values) == 1 {
		return values[0] - 1, values[0] + 1
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
