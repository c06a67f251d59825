package loader

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OpenPSG/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"physio-replay/pkg/record"
)

// writeEDFFixture produces a two-signal EDF file: a 10 Hz sine and a 2 Hz
// ramp, four one-second data records each.
func writeEDFFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.edf")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "Patient X",
		RecordingID:        "Recording 1",
		StartTime:          time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		DataRecordDuration: time.Second,
		SignalCount:        2,
		Signals: []edf.SignalHeader{
			{
				Label:            "EEG Fpz-Cz",
				PhysicalMin:      -100,
				PhysicalMax:      100,
				DigitalMin:       -32768,
				DigitalMax:       32767,
				SamplesPerRecord: 10,
			},
			{
				Label:            "EEG Pz-Oz",
				PhysicalMin:      -100,
				PhysicalMax:      100,
				DigitalMin:       -32768,
				DigitalMax:       32767,
				SamplesPerRecord: 2,
			},
		},
	}

	w, err := edf.Create(f, hdr)
	require.NoError(t, err)

	for rec := 0; rec < 4; rec++ {
		fast := make([]float64, 10)
		for i := range fast {
			ts := float64(rec) + float64(i)/10
			fast[i] = 50 * math.Sin(2*math.Pi*ts)
		}
		slow := []float64{float64(rec), float64(rec) + 0.5}
		require.NoError(t, w.WriteRecord([][]float64{fast, slow}))
	}
	require.NoError(t, w.Close())

	return path
}

func TestLoadEDF(t *testing.T) {
	path := writeEDFFixture(t)
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, f.Close()) })

	rec, err := Load(record.KindEEG, "fixture.edf", f)
	require.NoError(t, err)

	require.Len(t, rec.Channels, 2)

	fast := rec.Channels["EEG Fpz-Cz"]
	assert.Len(t, fast.Times, 40)
	assert.Equal(t, 10.0, fast.SampleRate)
	assert.InDelta(t, 0.1, fast.Times[1], 1e-9)
	assert.InDelta(t, 3.9, fast.Times[39], 1e-9)

	slow := rec.Channels["EEG Pz-Oz"]
	assert.Len(t, slow.Times, 8)
	assert.Equal(t, 2.0, slow.SampleRate)

	// Values survive the digital round trip within quantisation error.
	assert.InDelta(t, 50*math.Sin(2*math.Pi*0.1), fast.Values[1], 0.01)
	assert.InDelta(t, 2.5, slow.Values[5], 0.01)

	// Duration is the max last-sample time across the two rates.
	assert.InDelta(t, 3.9, rec.Duration, 1e-9)
}

func TestLoadEDFGarbage(t *testing.T) {
	_, err := Load(record.KindEEG, "noise.edf", strings.NewReader("not an edf file"))
	require.ErrorIs(t, err, record.ErrMalformedRecord)
}

// TestLoadCSV exercises the numerics path including a gap cell, which must
// shorten that channel rather than fail or fabricate a value.
func TestLoadCSV(t *testing.T) {
	csvBody := strings.Join([]string{
		"time,HR,SpO2",
		"0,72,98",
		"0.5,73,",
		"1.0,74,97",
	}, "\n")

	rec, err := Load(record.KindVitalsNumerics, "vitals.csv", strings.NewReader(csvBody))
	require.NoError(t, err)

	hr := rec.Channels["HR"]
	require.Equal(t, []float64{0, 0.5, 1}, hr.Times)
	require.Equal(t, []float64{72, 73, 74}, hr.Values)

	spo2 := rec.Channels["SpO2"]
	require.Equal(t, []float64{0, 1}, spo2.Times)
	require.Equal(t, []float64{98, 97}, spo2.Values)

	assert.Equal(t, 1.0, rec.Duration)
}

func TestLoadCSVMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no channels", body: "time\n0\n1\n"},
		{name: "bad timestamp", body: "time,HR\nzero,72\n"},
		{name: "bad value", body: "time,HR\n0,fast\n"},
		{name: "non increasing time", body: "time,HR\n0,72\n0,73\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(record.KindVitalsNumerics, "vitals.csv", strings.NewReader(tc.body))
			require.ErrorIs(t, err, record.ErrMalformedRecord)
		})
	}
}

// TestLoadCSVHeaderOnly checks a table without data rows counts as an
// empty upload, not a valid zero-duration record.
func TestLoadCSVHeaderOnly(t *testing.T) {
	_, err := Load(record.KindVitalsNumerics, "vitals.csv", strings.NewReader("time,HR\n"))
	require.ErrorIs(t, err, record.ErrEmptyRecord)
}

// TestLoadJSON covers the tolerant waveform dump decoding, including the
// legacy time_sec/value aliases and duplicate labels.
func TestLoadJSON(t *testing.T) {
	body := `{"channels":[
		{"label":"ECG","times":[0,0.004,0.008],"values":[0.1,0.5,0.2]},
		{"label":"ECG","time_sec":[0,0.01],"value":[1,2]},
		{"t":[0,1],"v":[3,4],"sampleRate":1}
	]}`

	rec, err := Load(record.KindVitalsWaves, "waves.json", strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rec.Channels, 3)

	require.Contains(t, rec.Channels, "ECG")
	require.Contains(t, rec.Channels, "ECG-2")
	require.Contains(t, rec.Channels, "ch3")
	assert.Equal(t, []float64{1, 2}, rec.Channels["ECG-2"].Values)
	assert.Equal(t, 1.0, rec.Channels["ch3"].SampleRate)
}

func TestLoadJSONErrors(t *testing.T) {
	_, err := Load(record.KindVitalsWaves, "waves.json", strings.NewReader("{boom"))
	require.ErrorIs(t, err, record.ErrMalformedRecord)

	_, err = Load(record.KindVitalsWaves, "waves.json", strings.NewReader(`{"channels":[]}`))
	require.ErrorIs(t, err, record.ErrEmptyRecord)

	_, err = Load(record.KindVitalsWaves, "waves.json", strings.NewReader(`{"channels":[{"label":"x","values":[1]}]}`))
	require.ErrorIs(t, err, record.ErrMalformedRecord)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := Load(record.KindEEG, "record.xml", strings.NewReader("<xml/>"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Load(.xml) = %v, want ErrUnsupportedFormat", err)
	}
}
