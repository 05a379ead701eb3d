package analytics

import (
	"context"
	"time"

	"github.com/c360/vibstreams/frame"
)

// timeViewMaxPoints caps the per-channel waveform length shipped to
// viewers; longer frames are stride-decimated.
const timeViewMaxPoints = 4096

// TimeViewData carries the calibrated waveform of every main channel,
// decimated to at most timeViewMaxPoints samples each.
type TimeViewData struct {
	SampleRate int               `json:"sample_rate"`
	Decimation int               `json:"decimation"`
	Channels   map[int][]float64 `json:"channels"`
	TachoFreq  []float64         `json:"tacho_freq,omitempty"`
}

// TimeViewProcessor streams the raw calibrated waveforms. Stateless.
type TimeViewProcessor struct {
	base baseProcessor
}

// NewTimeViewProcessor builds the all-channel waveform view.
func NewTimeViewProcessor(base baseProcessor) *TimeViewProcessor {
	return &TimeViewProcessor{base: base}
}

// Process implements the subscription processor contract.
func (p *TimeViewProcessor) Process(ctx context.Context, f *frame.Frame) error {
	stride := 1
	if f.SamplesPerChannel > timeViewMaxPoints {
		stride = (f.SamplesPerChannel + timeViewMaxPoints - 1) / timeViewMaxPoints
	}

	channels := make(map[int][]float64, f.MainChannels)
	for ch := 0; ch < f.MainChannels; ch++ {
		x := p.base.calibrations.Channel(f, ch)
		if len(x) < 2 {
			continue
		}
		channels[ch] = decimate(x, stride)
	}
	if len(channels) == 0 {
		return nil
	}

	data := TimeViewData{
		SampleRate: f.SampleRate,
		Decimation: stride,
		Channels:   channels,
	}
	if f.HasTachoFreq() {
		freq := make([]float64, 0, (len(f.TachoFreq)+stride-1)/stride)
		for i := 0; i < len(f.TachoFreq); i += stride {
			freq = append(freq, float64(f.TachoFreq[i]))
		}
		data.TachoFreq = freq
	}
	return p.base.emit(ctx, f, data)
}

func decimate(x []float64, stride int) []float64 {
	if stride <= 1 {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}
	out := make([]float64, 0, (len(x)+stride-1)/stride)
	for i := 0; i < len(x); i += stride {
		out = append(out, x[i])
	}
	return out
}

// HistoryPoint is one 1X phasor observation.
type HistoryPoint struct {
	FrameIndex uint32    `json:"frame_index"`
	Time       time.Time `json:"time"`
	Amplitude  float64   `json:"amplitude"`
	Phase      float64   `json:"phase"`
	RPM        float64   `json:"rpm"`
}

// HistoryData is the trailing 1X record for one channel.
type HistoryData struct {
	Points []HistoryPoint `json:"points"`
}

// HistoryProcessor keeps a sliding trail of per-frame 1X phasors.
// Tacho-gated.
type HistoryProcessor struct {
	base   baseProcessor
	window int
	points []HistoryPoint
}

// NewHistoryProcessor builds a single-channel 1X history.
func NewHistoryProcessor(base baseProcessor) *HistoryProcessor {
	return &HistoryProcessor{base: base, window: DefaultTrendWindow}
}

// Process implements the subscription processor contract.
func (p *HistoryProcessor) Process(ctx context.Context, f *frame.Frame) error {
	pt, ok := p.base.onePerFrame1X(f)
	if !ok {
		return nil
	}
	p.points = append(p.points, pt)
	if len(p.points) > p.window {
		p.points = p.points[len(p.points)-p.window:]
	}
	return p.base.emit(ctx, f, HistoryData{Points: p.points})
}

// PolarData is the latest 1X phasor for polar display.
type PolarData struct {
	Amplitude float64 `json:"amplitude"`
	Phase     float64 `json:"phase"`
	RPM       float64 `json:"rpm"`
}

// PolarProcessor emits the segment-averaged 1X phasor each frame.
// Tacho-gated, stateless.
type PolarProcessor struct {
	base baseProcessor
}

// NewPolarProcessor builds a single-channel polar view.
func NewPolarProcessor(base baseProcessor) *PolarProcessor {
	return &PolarProcessor{base: base}
}

// Process implements the subscription processor contract.
func (p *PolarProcessor) Process(ctx context.Context, f *frame.Frame) error {
	pt, ok := p.base.onePerFrame1X(f)
	if !ok {
		return nil
	}
	return p.base.emit(ctx, f, PolarData{
		Amplitude: pt.Amplitude,
		Phase:     pt.Phase,
		RPM:       pt.RPM,
	})
}

// onePerFrame1X computes the segment-averaged 1X phasor of the
// processor's channel. ok is false when the frame lacks usable
// segments or samples.
func (b *baseProcessor) onePerFrame1X(f *frame.Frame) (HistoryPoint, bool) {
	segments := f.Segments()
	if len(segments) == 0 {
		return HistoryPoint{}, false
	}
	x := b.channelSamples(f)
	if len(x) < 2 {
		return HistoryPoint{}, false
	}
	harmonics := frameHarmonics(x, segments, 1)
	if len(harmonics) == 0 {
		return HistoryPoint{}, false
	}
	return HistoryPoint{
		FrameIndex: f.FrameIndex,
		Time:       f.CreatedAt,
		Amplitude:  harmonics[0].Amplitude,
		Phase:      harmonics[0].Phase,
		RPM:        60 * f.MeanTachoFreq(),
	}, true
}
