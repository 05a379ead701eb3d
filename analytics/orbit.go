package analytics

import (
	"context"
	"math"

	"github.com/c360/vibstreams/frame"
)

// circularityLimit is the std/mean radius ratio under which an orbit
// counts as circular.
const circularityLimit = 0.01

// OrbitData is the (x, y) trajectory of a probe pair for one frame.
// The subscribed channel is X; the next main channel is Y.
type OrbitData struct {
	X        []float64 `json:"x"`
	Y        []float64 `json:"y"`
	Circular bool      `json:"circular"`
}

// OrbitProcessor is stateless between frames.
type OrbitProcessor struct {
	base baseProcessor
}

// NewOrbitProcessor builds an orbit processor for the channel pair
// (base.channel, base.channel+1).
func NewOrbitProcessor(base baseProcessor) *OrbitProcessor {
	return &OrbitProcessor{base: base}
}

// Process implements the subscription processor contract.
func (p *OrbitProcessor) Process(ctx context.Context, f *frame.Frame) error {
	x := p.base.calibrations.Channel(f, p.base.channel)
	y := p.base.calibrations.Channel(f, p.base.channel+1)
	if len(x) < 2 || len(y) != len(x) {
		return nil
	}

	return p.base.emit(ctx, f, OrbitData{
		X:        x,
		Y:        y,
		Circular: isCircular(x, y),
	})
}

// isCircular centers the trajectory and checks radius spread.
func isCircular(x, y []float64) bool {
	n := float64(len(x))
	var cx, cy float64
	for i := range x {
		cx += x[i]
		cy += y[i]
	}
	cx /= n
	cy /= n

	radii := make([]float64, len(x))
	var mean float64
	for i := range x {
		radii[i] = math.Hypot(x[i]-cx, y[i]-cy)
		mean += radii[i]
	}
	mean /= n
	if mean == 0 {
		return false
	}

	var variance float64
	for _, r := range radii {
		d := r - mean
		variance += d * d
	}
	std := math.Sqrt(variance / n)
	return std/mean < circularityLimit
}
