package analytics

import (
	"context"

	"github.com/c360/vibstreams/analytics/dsp"
	"github.com/c360/vibstreams/configstore"
	"github.com/c360/vibstreams/frame"
)

// TabularRow is the per-channel output of the tabular processor.
type TabularRow struct {
	Channel    int        `json:"channel"`
	Direct     float64    `json:"direct"`    // segment-averaged raw pk-pk
	Bandpass   float64    `json:"bandpass"`  // segment-averaged band-pass pk-pk
	Lowpass    float64    `json:"lowpass"`   // segment-averaged low-pass pk-pk
	Highpass   float64    `json:"highpass"`  // segment-averaged high-pass pk-pk
	Harmonics  []Harmonic `json:"harmonics"` // 1X..NX
	GapVoltage float64    `json:"gap_voltage"`
	Unit       string     `json:"unit"`
}

// TabularData is one tabular update: all channels of a frame plus the
// shaft speed.
type TabularData struct {
	RPM  float64      `json:"rpm"`
	Rows []TabularRow `json:"rows"`
}

// TabularProcessor computes filtered-waveform measurements for every
// main channel. Tacho-gated: a frame without at least two trigger
// markers produces no update.
type TabularProcessor struct {
	base     baseProcessor
	settings configstore.TabularSettings
}

// NewTabularProcessor builds the processor from the current tabular
// settings snapshot.
func NewTabularProcessor(base baseProcessor, settings configstore.TabularSettings) *TabularProcessor {
	return &TabularProcessor{base: base, settings: settings}
}

// Process implements the subscription processor contract.
func (p *TabularProcessor) Process(ctx context.Context, f *frame.Frame) error {
	segments := f.Segments()
	if len(segments) == 0 {
		return nil
	}

	sr := float64(f.SampleRate)
	low := dsp.LowPassFIR(20, sr)
	high := dsp.HighPassFIR(200, sr)
	var band []float64 // nil taps bypass the band-pass stage
	if p.settings.Bandpass != configstore.BandpassNone {
		band = dsp.BandPassFIR(p.settings.BandLowHz, p.settings.BandHighHz, sr)
	}

	rows := make([]TabularRow, 0, f.MainChannels)
	for ch := 0; ch < f.MainChannels; ch++ {
		x := p.base.calibrations.Channel(f, ch)
		if len(x) < 2 {
			continue
		}
		cal := p.base.calibrations.For(ch)

		bp := x
		if band != nil {
			bp = dsp.Filter(band, x)
		}
		rows = append(rows, TabularRow{
			Channel:    ch,
			Direct:     segmentPeakToPeak(x, segments),
			Bandpass:   segmentPeakToPeak(bp, segments),
			Lowpass:    segmentPeakToPeak(dsp.Filter(low, x), segments),
			Highpass:   segmentPeakToPeak(dsp.Filter(high, x), segments),
			Harmonics:  frameHarmonics(x, segments, p.settings.Harmonics),
			GapVoltage: float64(f.Gap(ch)) * adcScale,
			Unit:       cal.Unit,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	return p.base.emit(ctx, f, TabularData{
		RPM:  60 * f.MeanTachoFreq(),
		Rows: rows,
	})
}
