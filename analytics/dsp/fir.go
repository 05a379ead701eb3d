package dsp

import "math"

// FIRTaps is the length of every filter designed here. 31 taps keeps
// the group delay at 15 samples, short enough to ignore against the
// frame lengths we process.
const FIRTaps = 31

// LowPassFIR designs a Hamming-windowed sinc low-pass filter with the
// given cutoff frequency.
func LowPassFIR(cutoffHz, sampleRate float64) []float64 {
	taps := make([]float64, FIRTaps)
	fc := cutoffHz / sampleRate
	m := FIRTaps - 1
	for i := range taps {
		taps[i] = sinc(2*fc*(float64(i)-float64(m)/2)) * hammingTap(i, FIRTaps)
	}
	return normalizeDC(taps)
}

// HighPassFIR designs a high-pass filter by spectral inversion of the
// corresponding low-pass design.
func HighPassFIR(cutoffHz, sampleRate float64) []float64 {
	taps := LowPassFIR(cutoffHz, sampleRate)
	for i := range taps {
		taps[i] = -taps[i]
	}
	taps[(FIRTaps-1)/2] += 1
	return taps
}

// BandPassFIR designs a band-pass filter as the difference of two
// low-pass designs at the band edges.
func BandPassFIR(lowHz, highHz, sampleRate float64) []float64 {
	upper := LowPassFIR(highHz, sampleRate)
	lower := LowPassFIR(lowHz, sampleRate)
	taps := make([]float64, FIRTaps)
	for i := range taps {
		taps[i] = upper[i] - lower[i]
	}
	return taps
}

// Filter convolves the samples with the taps, returning an output the
// same length as the input. Samples before the start are treated as
// zero.
func Filter(taps, samples []float64) []float64 {
	out := make([]float64, len(samples))
	for i := range samples {
		var acc float64
		for j, t := range taps {
			k := i - j
			if k < 0 {
				break
			}
			acc += t * samples[k]
		}
		out[i] = acc
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

func hammingTap(i, n int) float64 {
	return 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
}

// normalizeDC scales the taps so the filter has unit gain at DC.
func normalizeDC(taps []float64) []float64 {
	var sum float64
	for _, t := range taps {
		sum += t
	}
	if sum == 0 {
		return taps
	}
	for i := range taps {
		taps[i] /= sum
	}
	return taps
}
