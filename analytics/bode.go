package analytics

import (
	"context"
	"math"
	"sort"

	"github.com/c360/vibstreams/frame"
)

// bodeSmoothing is the moving-average window over the
// frequency-ordered bins.
const bodeSmoothing = 7

// BodePoint is one smoothed (frequency, 1X amplitude, 1X phase) bin.
type BodePoint struct {
	Frequency float64 `json:"frequency"`
	Amplitude float64 `json:"amplitude"`
	Phase     float64 `json:"phase"`
}

// BodeData is the full smoothed curve after the latest frame.
type BodeData struct {
	Points []BodePoint `json:"points"`
}

type bodeBin struct {
	ampSum   float64
	phaseSum float64
	count    int
}

// BodeProcessor accumulates per-segment 1X phasors across frames,
// binned by shaft frequency rounded to two decimals.
type BodeProcessor struct {
	base baseProcessor
	bins map[float64]*bodeBin
}

// NewBodeProcessor builds a single-channel bode accumulator.
func NewBodeProcessor(base baseProcessor) *BodeProcessor {
	return &BodeProcessor{base: base, bins: make(map[float64]*bodeBin)}
}

// Process implements the subscription processor contract.
func (p *BodeProcessor) Process(ctx context.Context, f *frame.Frame) error {
	segments := f.Segments()
	if len(segments) == 0 || f.SampleRate <= 0 {
		return nil
	}
	x := p.base.channelSamples(f)
	if len(x) < 2 {
		return nil
	}

	for _, seg := range segments {
		if seg.End > len(x) || seg.Len() <= 0 {
			continue
		}
		// One revolution spans the segment, so the shaft frequency
		// is the sample rate over the segment length.
		freq := roundTo(float64(f.SampleRate)/float64(seg.Len()), 2)
		h := segmentHarmonic(x, seg, 1)

		bin := p.bins[freq]
		if bin == nil {
			bin = &bodeBin{}
			p.bins[freq] = bin
		}
		bin.ampSum += h.Amplitude
		bin.phaseSum += h.Phase
		bin.count++
	}

	return p.base.emit(ctx, f, BodeData{Points: p.curve()})
}

// curve returns the binned averages ordered by frequency, smoothed
// with a centered moving average.
func (p *BodeProcessor) curve() []BodePoint {
	points := make([]BodePoint, 0, len(p.bins))
	for freq, bin := range p.bins {
		points = append(points, BodePoint{
			Frequency: freq,
			Amplitude: bin.ampSum / float64(bin.count),
			Phase:     bin.phaseSum / float64(bin.count),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Frequency < points[j].Frequency })
	return smoothBode(points, bodeSmoothing)
}

func smoothBode(points []BodePoint, window int) []BodePoint {
	if len(points) == 0 || window <= 1 {
		return points
	}
	half := window / 2
	out := make([]BodePoint, len(points))
	for i := range points {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > len(points) {
			hi = len(points)
		}
		var amp, phase float64
		for _, pt := range points[lo:hi] {
			amp += pt.Amplitude
			phase += pt.Phase
		}
		n := float64(hi - lo)
		out[i] = BodePoint{
			Frequency: points[i].Frequency,
			Amplitude: amp / n,
			Phase:     phase / n,
		}
	}
	return out
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
