package analytics

import (
	"context"
	"time"

	"github.com/c360/vibstreams/frame"
)

// DefaultTrendWindow bounds the number of retained trend points.
const DefaultTrendWindow = 3600

// TrendPoint is one scalar appended per frame.
type TrendPoint struct {
	FrameIndex uint32    `json:"frame_index"`
	Time       time.Time `json:"time"`
	Value      float64   `json:"value"`
}

// TrendData is the sliding window after the latest append.
type TrendData struct {
	Points []TrendPoint `json:"points"`
}

// TrendProcessor tracks whole-frame peak-to-peak of one channel.
type TrendProcessor struct {
	base   baseProcessor
	window int
	points []TrendPoint
}

// NewTrendProcessor builds a single-channel trend with the default
// window size.
func NewTrendProcessor(base baseProcessor) *TrendProcessor {
	return &TrendProcessor{base: base, window: DefaultTrendWindow}
}

// Process implements the subscription processor contract.
func (p *TrendProcessor) Process(ctx context.Context, f *frame.Frame) error {
	x := p.base.channelSamples(f)
	if len(x) < 2 {
		return nil
	}
	p.points = appendWindowed(p.points, TrendPoint{
		FrameIndex: f.FrameIndex,
		Time:       f.CreatedAt,
		Value:      peakToPeak(x),
	}, p.window)
	return p.base.emit(ctx, f, TrendData{Points: p.points})
}

// MultiTrendData carries one sliding window per main channel.
type MultiTrendData struct {
	Channels map[int][]TrendPoint `json:"channels"`
	RPM      float64              `json:"rpm"`
}

// MultiTrendProcessor tracks segment-averaged peak-to-peak for every
// main channel. Falls back to whole-frame peak-to-peak when the frame
// carries no usable tacho markers.
type MultiTrendProcessor struct {
	base     baseProcessor
	window   int
	channels map[int][]TrendPoint
}

// NewMultiTrendProcessor builds the all-channel trend with the default
// window size.
func NewMultiTrendProcessor(base baseProcessor) *MultiTrendProcessor {
	return &MultiTrendProcessor{
		base:     base,
		window:   DefaultTrendWindow,
		channels: make(map[int][]TrendPoint),
	}
}

// Process implements the subscription processor contract.
func (p *MultiTrendProcessor) Process(ctx context.Context, f *frame.Frame) error {
	segments := f.Segments()

	var updated bool
	for ch := 0; ch < f.MainChannels; ch++ {
		x := p.base.calibrations.Channel(f, ch)
		if len(x) < 2 {
			continue
		}
		value := peakToPeak(x)
		if len(segments) > 0 {
			value = segmentPeakToPeak(x, segments)
		}
		p.channels[ch] = appendWindowed(p.channels[ch], TrendPoint{
			FrameIndex: f.FrameIndex,
			Time:       f.CreatedAt,
			Value:      value,
		}, p.window)
		updated = true
	}
	if !updated {
		return nil
	}

	return p.base.emit(ctx, f, MultiTrendData{
		Channels: p.channels,
		RPM:      60 * f.MeanTachoFreq(),
	})
}

func appendWindowed(points []TrendPoint, pt TrendPoint, window int) []TrendPoint {
	points = append(points, pt)
	if len(points) > window {
		points = points[len(points)-window:]
	}
	return points
}
