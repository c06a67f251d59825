// Package trend reduces a full channel to a fixed number of points so the
// overview plot stays the same size whether the record holds ten samples or
// ten million. The channel's time span is split into equal-width bins and
// each bin collapses to one statistic; the bin count is configuration, never
// a function of record length.
package trend

import (
	"math"

	"physio-replay/pkg/record"
)

// Method selects the per-bin statistic.
type Method int

const (
	// WindowedRMS emits sqrt(mean(v²)) per bin. This characterises signal
	// power over time, the standard reduction for EEG trend review.
	WindowedRMS Method = iota
	// MeanResample emits the plain mean per bin, suited to already
	// low-rate numerics. Empty bins are omitted so a gap in the source
	// stays a visible gap instead of a fabricated flat line.
	MeanResample
)

// Series is the decimated output: bin-midpoint times with one aggregate
// value each. Computed on demand from the current record; any caching is
// the caller's business so a fresh upload is never answered stale.
type Series struct {
	Label  string    `json:"label"`
	Times  []float64 `json:"times"`
	Values []float64 `json:"values"`
}

// Aggregate bins the channel into at most targetPoints values in a single
// linear scan. Samples are pre-sorted by the record invariant, so the bin
// index only ever moves forward. Bins are half-open [start, end) except the
// final bin, which is closed so the last sample is never dropped.
func Aggregate(s record.ChannelSeries, targetPoints int, method Method) Series {
	out := Series{Label: s.Label}
	if len(s.Times) == 0 || targetPoints <= 0 {
		return out
	}

	first := s.Times[0]
	span := s.Times[len(s.Times)-1] - first
	if span == 0 || targetPoints == 1 {
		// Degenerate span: everything lands in one bin.
		out.Times = []float64{first + span/2}
		out.Values = []float64{reduce(s.Values, method)}
		return out
	}

	binWidth := span / float64(targetPoints)
	bin := 0
	binEnd := first + binWidth

	var sum float64
	var count int
	flush := func() {
		if count == 0 {
			return
		}
		mid := first + (float64(bin)+0.5)*binWidth
		out.Times = append(out.Times, mid)
		out.Values = append(out.Values, finish(sum, count, method))
		sum, count = 0, 0
	}

	for i, t := range s.Times {
		// Advance to the sample's bin, emitting whatever accumulated.
		// The last bin is closed on both ends, so the index is capped.
		for t >= binEnd && bin < targetPoints-1 {
			flush()
			bin++
			binEnd = first + float64(bin+1)*binWidth
		}
		sum += accumulate(s.Values[i], method)
		count++
	}
	flush()

	return out
}

func accumulate(v float64, method Method) float64 {
	if method == WindowedRMS {
		return v * v
	}
	return v
}

func finish(sum float64, count int, method Method) float64 {
	mean := sum / float64(count)
	if method == WindowedRMS {
		return math.Sqrt(mean)
	}
	return mean
}

func reduce(values []float64, method Method) float64 {
	var sum float64
	for _, v := range values {
		sum += accumulate(v, method)
	}
	return finish(sum, len(values), method)
}
