// Package dsp holds the signal-processing primitives behind the
// analytics features: radix-2 FFT, window functions, FIR filters, and
// spectral weighting curves.
package dsp

import "math"

// FFT computes the complex spectrum of the input using the recursive
// Cooley-Tukey radix-2 algorithm. The input is zero-padded to the next
// power of two.
func FFT(input []float64) []complex128 {
	n := NextPowerOfTwo(len(input))
	buf := make([]complex128, n)
	for i, v := range input {
		buf[i] = complex(v, 0)
	}
	return recursiveFFT(buf)
}

func recursiveFFT(x []complex128) []complex128 {
	n := len(x)
	if n <= 1 {
		return x
	}

	even := make([]complex128, n/2)
	odd := make([]complex128, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = x[2*i]
		odd[i] = x[2*i+1]
	}

	even = recursiveFFT(even)
	odd = recursiveFFT(odd)

	out := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		angle := -2 * math.Pi * float64(k) / float64(n)
		t := complex(math.Cos(angle), math.Sin(angle))
		out[k] = even[k] + t*odd[k]
		out[k+n/2] = even[k] - t*odd[k]
	}
	return out
}

// NextPowerOfTwo returns the smallest power of two >= n (minimum 1).
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// HalfSpectrum reduces a complex spectrum of length L to magnitude and
// phase over bins [0, L/2). Magnitudes are scaled by 1/L; phases are
// degrees.
func HalfSpectrum(spectrum []complex128) (magnitude, phase []float64) {
	l := len(spectrum)
	half := l / 2
	magnitude = make([]float64, half)
	phase = make([]float64, half)
	for k := 0; k < half; k++ {
		re := real(spectrum[k])
		im := imag(spectrum[k])
		magnitude[k] = math.Hypot(re, im) / float64(l)
		phase[k] = math.Atan2(im, re) * 180 / math.Pi
	}
	return magnitude, phase
}

// BinFrequency returns the center frequency of bin k for a spectrum of
// length fftLen at the given sample rate.
func BinFrequency(k, fftLen, sampleRate int) float64 {
	return float64(k) * float64(sampleRate) / float64(fftLen)
}
