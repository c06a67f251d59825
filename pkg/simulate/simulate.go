// Package simulate builds synthetic physiological records so the viewer
// has something to scroll before any real upload arrives. Signal shapes
// follow the usual bedside look: a 10 Hz alpha-band sine with noise for
// EEG, composite ECG/ABP waveforms, and slowly drifting HR/SpO2/MAP
// numerics. The generator is seeded, so demo data is identical across
// restarts and screenshots are reproducible.
package simulate

import (
	"math"
	"math/rand"

	"physio-replay/pkg/record"
)

const demoSeed = 7

// EEGRecord returns one minute of four-channel EEG at 250 Hz.
func EEGRecord() *record.ChannelRecord {
	rng := rand.New(rand.NewSource(demoSeed))

	const (
		rate     = 250.0
		duration = 60.0
	)
	n := int(rate * duration)

	channels := make(map[string]record.ChannelSeries, 4)
	for ci, label := range []string{"Fp1", "Fp2", "C3", "C4"} {
		times := make([]float64, n)
		values := make([]float64, n)
		freq := 10.0 - float64(ci)*0.5 // slightly different alpha per lead
		for i := range times {
			t := float64(i) / rate
			times[i] = t
			values[i] = math.Sin(2*math.Pi*freq*t) + 0.2*rng.NormFloat64()
		}
		channels[label] = record.ChannelSeries{
			Label:      label,
			Times:      times,
			Values:     values,
			SampleRate: rate,
		}
	}

	rec, err := record.New(record.KindEEG, channels)
	if err != nil {
		panic(err) // generator invariants are static; a failure is a bug
	}
	return rec
}

// VitalsWavesRecord returns one minute of ECG-like and ABP-like waveforms
// at 200 Hz.
func VitalsWavesRecord() *record.ChannelRecord {
	rng := rand.New(rand.NewSource(demoSeed + 1))

	const (
		rate     = 200.0
		duration = 60.0
	)
	n := int(rate * duration)

	ecgTimes := make([]float64, n)
	ecgValues := make([]float64, n)
	abpTimes := make([]float64, n)
	abpValues := make([]float64, n)
	for i := range ecgTimes {
		t := float64(i) / rate
		ecgTimes[i] = t
		abpTimes[i] = t
		// Fundamental near 78 bpm plus a sharp harmonic for the QRS look.
		ecgValues[i] = 1.5*math.Sin(2*math.Pi*1.3*t) + 0.5*math.Sin(2*math.Pi*10*t) + 0.1*rng.NormFloat64()
		abpValues[i] = 80 + 20*math.Sin(2*math.Pi*1.2*t) + 5*rng.NormFloat64()
	}

	rec, err := record.New(record.KindVitalsWaves, map[string]record.ChannelSeries{
		"ECG": {Label: "ECG", Times: ecgTimes, Values: ecgValues, SampleRate: rate},
		"ABP": {Label: "ABP", Times: abpTimes, Values: abpValues, SampleRate: rate},
	})
	if err != nil {
		panic(err)
	}
	return rec
}

// VitalsNumericsRecord returns one minute of HR/SpO2/MAP numerics at 2 Hz.
func VitalsNumericsRecord() *record.ChannelRecord {
	rng := rand.New(rand.NewSource(demoSeed + 2))

	const (
		rate     = 2.0
		duration = 60.0
	)
	n := int(rate * duration)

	build := func(base, amp, period, noise float64) ([]float64, []float64) {
		times := make([]float64, n)
		values := make([]float64, n)
		for i := range times {
			t := float64(i) / rate
			times[i] = t
			values[i] = base + amp*math.Sin(2*math.Pi*t/period) + noise*rng.NormFloat64()
		}
		return times, values
	}

	hrT, hrV := build(70, 5, 30, 1)
	spo2T, spo2V := build(97, 0.5, 45, 0.3)
	mapT, mapV := build(90, 8, 40, 1)

	rec, err := record.New(record.KindVitalsNumerics, map[string]record.ChannelSeries{
		"HR":   {Label: "HR", Times: hrT, Values: hrV, SampleRate: rate},
		"SpO2": {Label: "SpO2", Times: spo2T, Values: spo2V, SampleRate: rate},
		"MAP":  {Label: "MAP", Times: mapT, Values: mapV, SampleRate: rate},
	})
	if err != nil {
		panic(err)
	}
	return rec
}

// Records returns one demo record per kind, ready for store seeding.
func Records() []*record.ChannelRecord {
	return []*record.ChannelRecord{
		EEGRecord(),
		VitalsWavesRecord(),
		VitalsNumericsRecord(),
	}
}
