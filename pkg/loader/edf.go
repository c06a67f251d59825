package loader

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/OpenPSG/edf"

	"physio-replay/pkg/record"
)

// edfLayout captures the handful of EDF header fields the loader needs to
// build time axes. The edf package keeps its parsed header private, so the
// fixed-width ASCII fields are read here; sample decoding and physical
// calibration stay with the library.
type edfLayout struct {
	dataRecords    int
	recordDuration float64 // seconds per data record
	labels         []string
	samplesPerRec  []int
}

// loadEDF parses an EDF/EDF+ recording: header layout read directly, the
// calibrated samples through the OpenPSG reader. Each signal becomes one
// channel with a uniform time axis, since EDF stores no per-sample
// timestamps. Uploads are size-capped by the HTTP layer, so buffering the
// file for the required ReadSeeker is fine.
func loadEDF(kind record.Kind, r io.Reader) (*record.ChannelRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading upload: %v", record.ErrMalformedRecord, err)
	}

	layout, err := parseEDFLayout(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", record.ErrMalformedRecord, err)
	}

	er, err := edf.Open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", record.ErrMalformedRecord, err)
	}

	channels := make(map[string]record.ChannelSeries, len(layout.labels))
	for i, label := range layout.labels {
		spr := layout.samplesPerRec[i]
		if spr <= 0 {
			continue // annotation-only or broken signal, skip it
		}

		total := layout.dataRecords * spr
		sampleRate := float64(spr) / layout.recordDuration

		sr, err := er.Signal(i)
		if err != nil {
			return nil, fmt.Errorf("%w: signal %d: %v", record.ErrMalformedRecord, i, err)
		}

		values := make([]float64, total)
		n, err := sr.Read(values)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w: signal %d: %v", record.ErrMalformedRecord, i, err)
		}
		values = values[:n]

		times := make([]float64, n)
		for j := range times {
			times[j] = float64(j) / sampleRate
		}

		if label == "" {
			label = fmt.Sprintf("signal%d", i+1)
		}
		channels[uniqueLabel(channels, label)] = record.ChannelSeries{
			Label:      label,
			Times:      times,
			Values:     values,
			SampleRate: sampleRate,
		}
	}

	return record.New(kind, channels)
}

// parseEDFLayout pulls the record count, record duration, signal labels and
// per-record sample counts out of the fixed-width header. Field offsets
// follow the EDF specification: a 256-byte global header, then per-signal
// blocks of labels (16 bytes each), transducer (80), dimension (8),
// physical min/max (8+8), digital min/max (8+8), prefiltering (80),
// samples per record (8) and reserved (32).
func parseEDFLayout(data []byte) (edfLayout, error) {
	var layout edfLayout
	if len(data) < 256 {
		return layout, fmt.Errorf("header truncated: %d bytes", len(data))
	}

	dataRecords, err := edfInt(data[236:244])
	if err != nil {
		return layout, fmt.Errorf("record count: %v", err)
	}
	if dataRecords < 0 {
		return layout, fmt.Errorf("record count unknown (-1)")
	}
	layout.dataRecords = dataRecords

	layout.recordDuration, err = edfFloat(data[244:252])
	if err != nil || layout.recordDuration <= 0 {
		return layout, fmt.Errorf("bad data record duration %q", strings.TrimSpace(string(data[244:252])))
	}

	ns, err := edfInt(data[252:256])
	if err != nil || ns <= 0 {
		return layout, fmt.Errorf("bad signal count %q", strings.TrimSpace(string(data[252:256])))
	}

	// One full per-signal header block must be present.
	if len(data) < 256+ns*216 {
		return layout, fmt.Errorf("signal headers truncated")
	}

	labelBase := 256
	sprBase := 256 + ns*(16+80+8+8+8+8+8+80)
	for i := 0; i < ns; i++ {
		layout.labels = append(layout.labels,
			strings.TrimSpace(string(data[labelBase+i*16:labelBase+(i+1)*16])))
		spr, err := edfInt(data[sprBase+i*8 : sprBase+(i+1)*8])
		if err != nil {
			return layout, fmt.Errorf("signal %d samples per record: %v", i, err)
		}
		layout.samplesPerRec = append(layout.samplesPerRec, spr)
	}

	return layout, nil
}

func edfInt(b []byte) (int, error) {
	return strconv.Atoi(strings.TrimSpace(string(b)))
}

func edfFloat(b []byte) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
}
