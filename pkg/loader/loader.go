// Package loader turns uploaded files into validated channel records.
// The format is chosen by filename extension, mirroring how the upload
// endpoint dispatches on what the browser hands over: EDF for EEG
// recordings, CSV for low-rate numerics, JSON dumps for waveform exports.
// Parsing happens entirely before the record enters the store, so the core
// never blocks on I/O.
package loader

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"physio-replay/pkg/record"
)

// ErrUnsupportedFormat is returned for extensions no parser claims. The
// HTTP layer maps it to a client error instead of a server fault.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Load parses the upload and builds an immutable record for the kind.
// Structural failures come back wrapping record.ErrMalformedRecord, a
// parseable container without channels wraps record.ErrEmptyRecord.
func Load(kind record.Kind, filename string, r io.Reader) (*record.ChannelRecord, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".edf":
		return loadEDF(kind, r)
	case ".csv":
		return loadCSV(kind, r)
	case ".json":
		return loadJSON(kind, r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// loadCSV reads a table whose header names the channels and whose first
// column is the shared time axis in seconds. An empty cell is a gap for
// that channel only, which is how exported numeric vitals represent
// dropouts; the channel simply has fewer samples than the time column.
func loadCSV(kind record.Kind, r io.Reader) (*record.ChannelRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // rows may be ragged; we validate per cell

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing csv header: %v", record.ErrMalformedRecord, err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%w: csv needs a time column and at least one channel", record.ErrMalformedRecord)
	}

	labels := make([]string, 0, len(header)-1)
	for _, h := range header[1:] {
		labels = append(labels, strings.TrimSpace(h))
	}

	times := make([][]float64, len(labels))
	values := make([][]float64, len(labels))

	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv line %d: %v", record.ErrMalformedRecord, line+1, err)
		}
		line++

		ts, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: csv line %d: bad timestamp %q", record.ErrMalformedRecord, line, row[0])
		}

		for i := range labels {
			if i+1 >= len(row) {
				continue // short row: trailing channels have a gap here
			}
			cell := strings.TrimSpace(row[i+1])
			if cell == "" {
				continue // explicit gap
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: csv line %d column %q: bad value %q", record.ErrMalformedRecord, line, labels[i], cell)
			}
			times[i] = append(times[i], ts)
			values[i] = append(values[i], v)
		}
	}

	if line == 1 {
		// A header with no data rows carries nothing worth replacing the
		// active record with.
		return nil, fmt.Errorf("%w: csv has no data rows", record.ErrEmptyRecord)
	}

	channels := make(map[string]record.ChannelSeries, len(labels))
	for i, label := range labels {
		if label == "" {
			label = fmt.Sprintf("ch%d", i+1)
		}
		channels[label] = record.ChannelSeries{
			Label:  label,
			Times:  times[i],
			Values: values[i],
		}
	}

	return record.New(kind, channels)
}

// jsonDump mirrors the export schema with tolerant field aliases, so dumps
// from older tooling (time_sec/t, value/values) still load.
type jsonDump struct {
	Channels []struct {
		Label      string    `json:"label"`
		Times      []float64 `json:"times"`
		TimeSec    []float64 `json:"time_sec"`
		T          []float64 `json:"t"`
		Values     []float64 `json:"values"`
		Value      []float64 `json:"value"`
		V          []float64 `json:"v"`
		SampleRate float64   `json:"sampleRate"`
	} `json:"channels"`
}

// loadJSON decodes a waveform dump. Aliases are resolved in declaration
// order; the first populated field wins.
func loadJSON(kind record.Kind, r io.Reader) (*record.ChannelRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading upload: %v", record.ErrMalformedRecord, err)
	}

	var dump jsonDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("%w: %v", record.ErrMalformedRecord, err)
	}

	channels := make(map[string]record.ChannelSeries, len(dump.Channels))
	for i, ch := range dump.Channels {
		times := firstNonEmpty(ch.Times, ch.TimeSec, ch.T)
		values := firstNonEmpty(ch.Values, ch.Value, ch.V)
		if times == nil {
			return nil, fmt.Errorf("%w: channel %d has no time axis", record.ErrMalformedRecord, i)
		}

		label := strings.TrimSpace(ch.Label)
		if label == "" {
			label = fmt.Sprintf("ch%d", i+1)
		}
		channels[uniqueLabel(channels, label)] = record.ChannelSeries{
			Label:      label,
			Times:      times,
			Values:     values,
			SampleRate: ch.SampleRate,
		}
	}

	return record.New(kind, channels)
}

func firstNonEmpty(candidates ...[]float64) []float64 {
	for _, c := range candidates {
		if len(c) > 0 {
			return c
		}
	}
	return nil
}

// uniqueLabel suffixes duplicate channel identifiers so two leads exported
// under the same name both survive the map.
func uniqueLabel(existing map[string]record.ChannelSeries, label string) string {
	if _, taken := existing[label]; !taken {
		return label
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", label, i)
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}
