package dsp

import "math"

// Analytic magnitude responses of the standard acoustic weighting
// networks, normalized to unity gain at 1 kHz. "linear" (or anything
// unrecognized) is a flat response.
const (
	weightF1 = 20.6
	weightF2 = 107.7
	weightF3 = 737.9
	weightF4 = 12194.0
	weightFB = 158.5
)

// WeightingGain returns the linear gain of the named weighting curve
// at frequency f (Hz).
func WeightingGain(name string, f float64) float64 {
	switch name {
	case "a":
		return aWeight(f) / aWeight(1000)
	case "b":
		return bWeight(f) / bWeight(1000)
	case "c":
		return cWeight(f) / cWeight(1000)
	default:
		return 1
	}
}

// ApplyWeighting scales magnitudes in place by the named curve, where
// freq(i) is the frequency of bin i.
func ApplyWeighting(name string, magnitudes []float64, freq func(i int) float64) {
	if name == "" || name == "linear" {
		return
	}
	for i := range magnitudes {
		magnitudes[i] *= WeightingGain(name, freq(i))
	}
}

func cWeight(f float64) float64 {
	f2 := f * f
	num := weightF4 * weightF4 * f2
	den := (f2 + weightF1*weightF1) * (f2 + weightF4*weightF4)
	if den == 0 {
		return 0
	}
	return num / den
}

func bWeight(f float64) float64 {
	f2 := f * f
	den := math.Sqrt(f2 + weightFB*weightFB)
	if den == 0 {
		return 0
	}
	return cWeight(f) * f / den
}

func aWeight(f float64) float64 {
	f2 := f * f
	den := math.Sqrt((f2 + weightF2*weightF2) * (f2 + weightF3*weightF3))
	if den == 0 {
		return 0
	}
	return cWeight(f) * f2 / den
}
