// Package record models one uploaded multichannel physiological dataset.
//
// Every channel keeps its own time axis because sample rates differ between
// signals (a 250 Hz EEG lead next to a 0.5 Hz numeric), and forcing them onto
// a shared grid would fabricate samples. Records are immutable once built:
// the store swaps whole records, it never patches channels in place.
package record

import (
	"errors"
	"fmt"
	"sort"
)

// Kind names one of the three upload slots. Each kind owns exactly one
// record and one playback cursor; kinds never interact.
type Kind string

const (
	KindEEG            Kind = "eeg"
	KindVitalsWaves    Kind = "vitals-waves"
	KindVitalsNumerics Kind = "vitals-numerics"
)

// Kinds returns all supported kinds in a stable order so callers can
// register routes or seed stores without hardcoding the list twice.
func Kinds() []Kind {
	return []Kind{KindEEG, KindVitalsWaves, KindVitalsNumerics}
}

// ParseKind maps a URL path segment onto a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindEEG, KindVitalsWaves, KindVitalsNumerics:
		return Kind(s), true
	}
	return "", false
}

// ErrMalformedRecord signals a structurally invalid upload: missing time
// axis, mismatched times/values lengths, or a non-increasing time axis.
// Not retryable; the caller needs a new upload.
var ErrMalformedRecord = errors.New("malformed record")

// ErrEmptyRecord signals a valid container with zero usable channels.
var ErrEmptyRecord = errors.New("record contains no channels")

// ChannelSeries holds one signal as parallel time/value slices, the same
// shape the browser canvas consumes. Times are seconds from record start,
// strictly increasing. SampleRate is samples per second, 0 when the signal
// is irregular or the source format does not state it.
type ChannelSeries struct {
	Label      string    `json:"label"`
	Times      []float64 `json:"times"`
	Values     []float64 `json:"values"`
	SampleRate float64   `json:"sampleRate,omitempty"`
}

// Duration returns the timestamp of the last sample, 0 for an empty series.
func (s ChannelSeries) Duration() float64 {
	if len(s.Times) == 0 {
		return 0
	}
	return s.Times[len(s.Times)-1]
}

// ChannelRecord is one uploaded dataset: a set of channels plus the
// precomputed record duration (max last-sample time across channels).
type ChannelRecord struct {
	Kind     Kind                     `json:"kind"`
	Channels map[string]ChannelSeries `json:"channels"`
	Duration float64                  `json:"duration"`
}

// ChannelIDs returns the channel identifiers sorted for deterministic
// iteration; map order would make responses jitter between polls.
func (r *ChannelRecord) ChannelIDs() []string {
	ids := make([]string, 0, len(r.Channels))
	for id := range r.Channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New validates the channels and assembles an immutable record.
// Channels that are individually empty are allowed (a disconnected lead
// must not sink the whole upload), but at least one channel must exist.
func New(kind Kind, channels map[string]ChannelSeries) (*ChannelRecord, error) {
	if len(channels) == 0 {
		return nil, ErrEmptyRecord
	}

	duration := 0.0
	for id, series := range channels {
		if err := validateSeries(series); err != nil {
			return nil, fmt.Errorf("%w: channel %q: %v", ErrMalformedRecord, id, err)
		}
		if d := series.Duration(); d > duration {
			duration = d
		}
	}

	return &ChannelRecord{
		Kind:     kind,
		Channels: channels,
		Duration: duration,
	}, nil
}

// validateSeries enforces the per-channel invariants: equal slice lengths
// and a strictly increasing time axis.
func validateSeries(s ChannelSeries) error {
	if len(s.Times) != len(s.Values) {
		return fmt.Errorf("times/values length mismatch: %d vs %d", len(s.Times), len(s.Values))
	}
	for i := 1; i < len(s.Times); i++ {
		if s.Times[i] <= s.Times[i-1] {
			return fmt.Errorf("time axis not strictly increasing at index %d (%g after %g)", i, s.Times[i], s.Times[i-1])
		}
	}
	return nil
}
