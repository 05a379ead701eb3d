package analytics

import (
	"math"

	"github.com/c360/vibstreams/frame"
)

// Harmonic is the amplitude and phase of one shaft-speed multiple.
type Harmonic struct {
	Order     int     `json:"order"`
	Amplitude float64 `json:"amplitude"`
	Phase     float64 `json:"phase"` // degrees, [0, 360)
}

// segmentHarmonic correlates one revolution segment against the k-th
// harmonic of the rotation frequency.
func segmentHarmonic(x []float64, seg frame.Segment, k int) Harmonic {
	n := seg.Len()
	if n <= 0 {
		return Harmonic{Order: k}
	}

	var sinSum, cosSum float64
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(k) * float64(i) / float64(n)
		v := x[seg.Start+i]
		sinSum += v * math.Sin(angle)
		cosSum += v * math.Cos(angle)
	}

	phase := math.Atan2(cosSum, sinSum) * 180 / math.Pi
	if phase < 0 {
		phase += 360
	}
	return Harmonic{
		Order:     k,
		Amplitude: 2 * math.Sqrt(sinSum*sinSum+cosSum*cosSum) / float64(n),
		Phase:     phase,
	}
}

// frameHarmonics averages per-segment harmonics 1..orders across all
// segments. Returns nil when no segment fits inside the waveform.
func frameHarmonics(x []float64, segments []frame.Segment, orders int) []Harmonic {
	if orders < 1 {
		return nil
	}

	sums := make([]Harmonic, orders)
	var count int
	for _, seg := range segments {
		if seg.End > len(x) || seg.Len() <= 0 {
			continue
		}
		for k := 1; k <= orders; k++ {
			h := segmentHarmonic(x, seg, k)
			sums[k-1].Amplitude += h.Amplitude
			sums[k-1].Phase += h.Phase
		}
		count++
	}
	if count == 0 {
		return nil
	}

	out := make([]Harmonic, orders)
	for k := range out {
		out[k] = Harmonic{
			Order:     k + 1,
			Amplitude: sums[k].Amplitude / float64(count),
			Phase:     sums[k].Phase / float64(count),
		}
	}
	return out
}

// peakToPeak returns max - min over the samples, 0 for empty input.
func peakToPeak(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	lo, hi := x[0], x[0]
	for _, v := range x[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

// segmentPeakToPeak averages the peak-to-peak of each segment. Falls
// back to 0 when no segment fits inside the waveform.
func segmentPeakToPeak(x []float64, segments []frame.Segment) float64 {
	var sum float64
	var count int
	for _, seg := range segments {
		if seg.End > len(x) || seg.Len() <= 0 {
			continue
		}
		sum += peakToPeak(x[seg.Start:seg.End])
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
