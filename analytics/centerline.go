package analytics

import (
	"context"
	"time"

	"github.com/c360/vibstreams/frame"
)

// gapNoiseLimit rejects raw gap readings above this value as sensor
// noise.
const gapNoiseLimit = 1000

// CenterlinePoint is one (gap_x, gap_y) shaft-position sample.
type CenterlinePoint struct {
	FrameIndex uint32    `json:"frame_index"`
	Time       time.Time `json:"time"`
	GapX       float64   `json:"gap_x"`
	GapY       float64   `json:"gap_y"`
	RPM        float64   `json:"rpm"`
}

// CenterlineData is the ordered position history after the latest
// accepted reading.
type CenterlineData struct {
	Points []CenterlinePoint `json:"points"`
}

// CenterlineProcessor tracks shaft position from the per-channel gap
// voltages of the probe pair (channel, channel+1).
type CenterlineProcessor struct {
	base   baseProcessor
	window int
	points []CenterlinePoint
}

// NewCenterlineProcessor builds a centerline accumulator with the
// default trend window.
func NewCenterlineProcessor(base baseProcessor) *CenterlineProcessor {
	return &CenterlineProcessor{base: base, window: DefaultTrendWindow}
}

// Process implements the subscription processor contract. Frames whose
// gap readings are absent or noisy produce no update.
func (p *CenterlineProcessor) Process(ctx context.Context, f *frame.Frame) error {
	gx := f.Gap(p.base.channel)
	gy := f.Gap(p.base.channel + 1)
	if gx == 0 && gy == 0 {
		return nil
	}
	if gx > gapNoiseLimit || gy > gapNoiseLimit {
		return nil
	}

	p.points = append(p.points, CenterlinePoint{
		FrameIndex: f.FrameIndex,
		Time:       f.CreatedAt,
		GapX:       float64(gx) * adcScale,
		GapY:       float64(gy) * adcScale,
		RPM:        60 * f.MeanTachoFreq(),
	})
	if len(p.points) > p.window {
		p.points = p.points[len(p.points)-p.window:]
	}

	return p.base.emit(ctx, f, CenterlineData{Points: p.points})
}
