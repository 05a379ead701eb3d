package dsp

import "math"

// Window applies the named window to a copy of the samples. Unknown
// names and "none"/"rectangular" leave the samples unchanged.
func Window(name string, samples []float64) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)
	n := len(out)
	if n < 2 {
		return out
	}

	coeff := windowCoefficient(name)
	if coeff == nil {
		return out
	}
	for i := range out {
		out[i] *= coeff(i, n)
	}
	return out
}

func windowCoefficient(name string) func(i, n int) float64 {
	switch name {
	case "hamming":
		return func(i, n int) float64 {
			return 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		}
	case "hanning":
		return func(i, n int) float64 {
			return 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		}
	case "blackman":
		return func(i, n int) float64 {
			x := 2 * math.Pi * float64(i) / float64(n-1)
			return 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
		}
	case "flattop":
		return func(i, n int) float64 {
			x := 2 * math.Pi * float64(i) / float64(n-1)
			return 0.21557895 -
				0.41663158*math.Cos(x) +
				0.277263158*math.Cos(2*x) -
				0.083578947*math.Cos(3*x) +
				0.006947368*math.Cos(4*x)
		}
	default:
		return nil
	}
}
