package analytics

import (
	"context"

	"github.com/c360/vibstreams/configstore"
	"github.com/c360/vibstreams/frame"
)

// ReportData is a point-in-time snapshot for one channel: the direct
// and harmonic measurements a report row is built from.
type ReportData struct {
	Direct    float64    `json:"direct"`
	Harmonics []Harmonic `json:"harmonics"`
	RPM       float64    `json:"rpm"`
	Unit      string     `json:"unit"`
}

// ReportProcessor emits a per-frame measurement snapshot for one
// channel. Tacho-gated.
type ReportProcessor struct {
	base     baseProcessor
	settings configstore.TabularSettings
}

// NewReportProcessor builds a single-channel report source.
func NewReportProcessor(base baseProcessor, settings configstore.TabularSettings) *ReportProcessor {
	return &ReportProcessor{base: base, settings: settings}
}

// Process implements the subscription processor contract.
func (p *ReportProcessor) Process(ctx context.Context, f *frame.Frame) error {
	segments := f.Segments()
	if len(segments) == 0 {
		return nil
	}
	x := p.base.channelSamples(f)
	if len(x) < 2 {
		return nil
	}

	return p.base.emit(ctx, f, ReportData{
		Direct:    segmentPeakToPeak(x, segments),
		Harmonics: frameHarmonics(x, segments, p.settings.Harmonics),
		RPM:       60 * f.MeanTachoFreq(),
		Unit:      p.base.calibrations.For(p.base.channel).Unit,
	})
}

// TimeReportData couples the measurement rows of every channel with a
// decimated waveform snapshot, the source material for a timestamped
// report.
type TimeReportData struct {
	RPM      float64            `json:"rpm"`
	Rows     map[int]ReportData `json:"rows"`
	Waveform TimeViewData       `json:"waveform"`
}

// TimeReportProcessor is the all-channel report source. Tacho-gated.
type TimeReportProcessor struct {
	base     baseProcessor
	settings configstore.TabularSettings
}

// NewTimeReportProcessor builds the all-channel report source.
func NewTimeReportProcessor(base baseProcessor, settings configstore.TabularSettings) *TimeReportProcessor {
	return &TimeReportProcessor{base: base, settings: settings}
}

// Process implements the subscription processor contract.
func (p *TimeReportProcessor) Process(ctx context.Context, f *frame.Frame) error {
	segments := f.Segments()
	if len(segments) == 0 {
		return nil
	}

	stride := 1
	if f.SamplesPerChannel > timeViewMaxPoints {
		stride = (f.SamplesPerChannel + timeViewMaxPoints - 1) / timeViewMaxPoints
	}

	rows := make(map[int]ReportData, f.MainChannels)
	waveform := TimeViewData{
		SampleRate: f.SampleRate,
		Decimation: stride,
		Channels:   make(map[int][]float64, f.MainChannels),
	}
	for ch := 0; ch < f.MainChannels; ch++ {
		x := p.base.calibrations.Channel(f, ch)
		if len(x) < 2 {
			continue
		}
		rows[ch] = ReportData{
			Direct:    segmentPeakToPeak(x, segments),
			Harmonics: frameHarmonics(x, segments, p.settings.Harmonics),
			RPM:       60 * f.MeanTachoFreq(),
			Unit:      p.base.calibrations.For(ch).Unit,
		}
		waveform.Channels[ch] = decimate(x, stride)
	}
	if len(rows) == 0 {
		return nil
	}

	return p.base.emit(ctx, f, TimeReportData{
		RPM:      60 * f.MeanTachoFreq(),
		Rows:     rows,
		Waveform: waveform,
	})
}
