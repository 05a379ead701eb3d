package analytics

import (
	"context"

	"github.com/c360/vibstreams/analytics/dsp"
	"github.com/c360/vibstreams/configstore"
	"github.com/c360/vibstreams/frame"
)

// FFTData is one spectrum update, resampled to the configured number
// of lines over the configured frequency mask.
type FFTData struct {
	Frequencies []float64 `json:"frequencies"`
	Magnitudes  []float64 `json:"magnitudes"`
	Phases      []float64 `json:"phases"`
	Window      string    `json:"window"`
	Weighting   string    `json:"weighting"`
}

// FFTProcessor turns each frame's channel waveform into an averaged,
// weighted spectrum. Stateful across frames for averaging.
type FFTProcessor struct {
	base     baseProcessor
	settings configstore.FFTSettings

	// ring of per-frame masked magnitudes for linear averaging;
	// prev holds the running spectrum for exponential averaging;
	// timeHist holds tacho-aligned waveforms for time_sync.
	history  [][]float64
	prev     []float64
	timeHist [][]float64
}

// NewFFTProcessor builds the processor from the current FFT settings
// snapshot.
func NewFFTProcessor(base baseProcessor, settings configstore.FFTSettings) *FFTProcessor {
	return &FFTProcessor{base: base, settings: settings}
}

// Process implements the subscription processor contract.
func (p *FFTProcessor) Process(ctx context.Context, f *frame.Frame) error {
	x := p.base.channelSamples(f)
	if len(x) < 2 {
		return nil
	}

	if p.settings.AveragingMode == configstore.AveragingLinear &&
		p.settings.LinearMode == configstore.LinearTimeSync {
		x = p.timeSyncAverage(x, f)
	}

	mag, phase, fftLen := p.spectrum(x)
	start, stop := p.maskBins(fftLen, f.SampleRate, len(mag))
	if start >= stop {
		return nil
	}
	mag = mag[start:stop]
	phase = phase[start:stop]

	freqs := make([]float64, len(mag))
	for i := range freqs {
		freqs[i] = dsp.BinFrequency(start+i, fftLen, f.SampleRate)
	}
	dsp.ApplyWeighting(weightingName(p.settings.Weighting), mag, func(i int) float64 {
		return freqs[i]
	})

	averaged := p.average(mag)

	lines := p.settings.NumberOfLines
	outMag := resample(averaged, lines)
	outPhase := resample(phase, lines)
	outFreq := resample(freqs, lines)

	return p.base.emit(ctx, f, FFTData{
		Frequencies: outFreq,
		Magnitudes:  outMag,
		Phases:      outPhase,
		Window:      p.settings.WindowType,
		Weighting:   p.settings.Weighting,
	})
}

// spectrum computes the windowed magnitude/phase half-spectrum. With a
// non-zero overlap percentage the waveform is split into overlapping
// blocks of one FFT length each and the block magnitudes are averaged;
// phase comes from the first block.
func (p *FFTProcessor) spectrum(x []float64) ([]float64, []float64, int) {
	window := windowName(p.settings.WindowType)

	blockLen := dsp.NextPowerOfTwo(2 * p.settings.NumberOfLines)
	if p.settings.OverlapPct <= 0 || len(x) <= blockLen {
		spec := dsp.FFT(dsp.Window(window, x))
		mag, phase := dsp.HalfSpectrum(spec)
		return mag, phase, len(spec)
	}

	advance := int(float64(blockLen) * (1 - p.settings.OverlapPct/100))
	if advance < 1 {
		advance = 1
	}

	var mag, phase []float64
	blocks := 0
	for start := 0; start+blockLen <= len(x); start += advance {
		spec := dsp.FFT(dsp.Window(window, x[start:start+blockLen]))
		m, ph := dsp.HalfSpectrum(spec)
		if mag == nil {
			mag = m
			phase = ph
		} else {
			for i, v := range m {
				mag[i] += v
			}
		}
		blocks++
	}
	for i := range mag {
		mag[i] /= float64(blocks)
	}
	return mag, phase, blockLen
}

// timeSyncAverage aligns the waveform at its first tacho trigger and
// averages it with the previous Averages aligned waveforms, so phase-
// coherent components reinforce and asynchronous noise cancels before
// the single FFT.
func (p *FFTProcessor) timeSyncAverage(x []float64, f *frame.Frame) []float64 {
	if idx := f.Triggers(); len(idx) > 0 && idx[0] > 0 && idx[0] < len(x) {
		x = x[idx[0]:]
	}

	p.timeHist = append(p.timeHist, x)
	if len(p.timeHist) > p.settings.Averages {
		p.timeHist = p.timeHist[len(p.timeHist)-p.settings.Averages:]
	}

	shortest := len(p.timeHist[0])
	for _, h := range p.timeHist[1:] {
		if len(h) < shortest {
			shortest = len(h)
		}
	}

	out := make([]float64, shortest)
	for _, h := range p.timeHist {
		for i := 0; i < shortest; i++ {
			out[i] += h[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(p.timeHist))
	}
	return out
}

// maskBins converts the [start_hz, stop_hz] mask to half-spectrum bin
// bounds. stop_hz 0 means Nyquist.
func (p *FFTProcessor) maskBins(fftLen, sampleRate, halfLen int) (int, int) {
	binWidth := float64(sampleRate) / float64(fftLen)
	start := int(p.settings.StartHz / binWidth)
	stop := halfLen
	if p.settings.StopHz > 0 {
		stop = int(p.settings.StopHz/binWidth) + 1
	}
	if start < 0 {
		start = 0
	}
	if stop > halfLen {
		stop = halfLen
	}
	return start, stop
}

// average applies the configured averaging mode over the buffered
// spectra. Resets the buffer when the mask length changes (settings or
// frame geometry shifted).
func (p *FFTProcessor) average(mag []float64) []float64 {
	switch p.settings.AveragingMode {
	case configstore.AveragingLinear:
		// time_sync already averaged in the time domain
		if p.settings.LinearMode == configstore.LinearTimeSync {
			return mag
		}
		if len(p.history) > 0 && len(p.history[0]) != len(mag) {
			p.history = nil
		}
		p.history = append(p.history, mag)
		if len(p.history) > p.settings.Averages {
			p.history = p.history[len(p.history)-p.settings.Averages:]
		}
		if p.settings.LinearMode == configstore.LinearPeakHold {
			out := make([]float64, len(mag))
			copy(out, p.history[0])
			for _, spec := range p.history[1:] {
				for i, v := range spec {
					if v > out[i] {
						out[i] = v
					}
				}
			}
			return out
		}
		out := make([]float64, len(mag))
		for _, spec := range p.history {
			for i, v := range spec {
				out[i] += v
			}
		}
		for i := range out {
			out[i] /= float64(len(p.history))
		}
		return out

	case configstore.AveragingExponential:
		if len(p.prev) != len(mag) {
			p.prev = nil
		}
		if p.prev == nil {
			p.prev = mag
			return mag
		}
		alpha := 2 / (float64(p.settings.Averages) + 1)
		out := make([]float64, len(mag))
		for i, v := range mag {
			out[i] = alpha*v + (1-alpha)*p.prev[i]
		}
		p.prev = out
		return out

	default:
		return mag
	}
}

// resample picks exactly n uniformly spaced points. When fewer points
// exist than requested, everything is returned as-is.
func resample(x []float64, n int) []float64 {
	if n <= 0 || len(x) <= n {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}
	if n == 1 {
		return []float64{x[0]}
	}
	out := make([]float64, n)
	step := float64(len(x)-1) / float64(n-1)
	for i := range out {
		out[i] = x[int(float64(i)*step)]
	}
	return out
}

func windowName(name string) string {
	if name == "none" {
		return "rectangular"
	}
	return name
}

func weightingName(name string) string {
	switch name {
	case configstore.WeightingA:
		return "a"
	case configstore.WeightingB:
		return "b"
	case configstore.WeightingC:
		return "c"
	default:
		return "linear"
	}
}
