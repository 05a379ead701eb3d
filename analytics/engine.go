package analytics

import (
	"log/slog"

	"github.com/c360/vibstreams/configstore"
	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/feature"
	"github.com/c360/vibstreams/subscription"
)

// EngineDeps wires the engine to the settings store and result bus.
type EngineDeps struct {
	Settings *configstore.Store
	Emitter  Emitter
	Logger   *slog.Logger
}

// Engine builds processor factories for the subscription manager. The
// factory closure captures the settings snapshot read at subscribe
// time; since panics rebuild through the same factory, a restarted
// processor starts from the same settings but fresh state.
type Engine struct {
	deps EngineDeps
}

// NewEngine validates deps and returns the engine.
func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.Settings == nil {
		return nil, errors.WrapFatal(errors.ErrNoConnection, "Engine", "NewEngine", "settings store is required")
	}
	if deps.Emitter == nil {
		return nil, errors.WrapFatal(errors.ErrNoConnection, "Engine", "NewEngine", "emitter is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{deps: deps}, nil
}

// Factory returns a processor factory for one (feature, model,
// channel) subscription. Calibrations are resolved by the caller from
// the project's channel table.
func (e *Engine) Factory(f feature.Feature, owner, project, model string, channel int,
	cal CalibrationSet) (subscription.ProcessorFactory, error) {

	fftSettings, err := e.deps.Settings.LatestFFTSettings(owner, project)
	if err != nil {
		return nil, errors.Wrap(err, "Engine", "Factory", "loading fft settings")
	}
	tabSettings, err := e.deps.Settings.LatestTabularSettings(owner, project)
	if err != nil {
		return nil, errors.Wrap(err, "Engine", "Factory", "loading tabular settings")
	}

	base := newBase(f, model, channel, cal, e.deps.Emitter, e.deps.Logger)
	return func() subscription.Processor {
		return e.build(f, base, fftSettings, tabSettings)
	}, nil
}

func (e *Engine) build(f feature.Feature, base baseProcessor,
	fft configstore.FFTSettings, tab configstore.TabularSettings) subscription.Processor {

	switch f {
	case feature.Tabular:
		return NewTabularProcessor(base, tab)
	case feature.TimeView:
		return NewTimeViewProcessor(base)
	case feature.TimeReport:
		return NewTimeReportProcessor(base, tab)
	case feature.MultiTrend:
		return NewMultiTrendProcessor(base)
	case feature.Trend:
		return NewTrendProcessor(base)
	case feature.Centerline:
		return NewCenterlineProcessor(base)
	case feature.FFT:
		return NewFFTProcessor(base, fft)
	case feature.Orbit:
		return NewOrbitProcessor(base)
	case feature.Bode:
		return NewBodeProcessor(base)
	case feature.History:
		return NewHistoryProcessor(base)
	case feature.Polar:
		return NewPolarProcessor(base)
	case feature.Report:
		return NewReportProcessor(base, tab)
	default:
		return NewTrendProcessor(base)
	}
}
