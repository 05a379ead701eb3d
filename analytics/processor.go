package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/vibstreams/feature"
	"github.com/c360/vibstreams/frame"
)

// ChannelAll marks results that cover every main channel.
const ChannelAll = -1

// baseProcessor carries what every feature processor shares: identity,
// calibration, and the emit path.
type baseProcessor struct {
	feature      feature.Feature
	model        string
	channel      int // ChannelAll for all-channel features
	calibrations CalibrationSet
	emitter      Emitter
	logger       *slog.Logger
}

func newBase(f feature.Feature, model string, channel int, cal CalibrationSet, em Emitter, logger *slog.Logger) baseProcessor {
	if f.AllChannels() {
		channel = ChannelAll
	}
	if logger == nil {
		logger = slog.Default()
	}
	return baseProcessor{
		feature:      f,
		model:        model,
		channel:      channel,
		calibrations: cal,
		emitter:      em,
		logger:       logger.With("component", "Analytics", "feature", f.String(), "model", model),
	}
}

// emit wraps the payload in a result envelope and hands it to the
// emitter. Emit failures are logged and swallowed; a slow or down bus
// must not stall the sink.
func (b *baseProcessor) emit(ctx context.Context, f *frame.Frame, data any) error {
	r := Result{
		Feature:    b.feature.String(),
		Model:      b.model,
		Channel:    b.channel,
		FrameIndex: f.FrameIndex,
		Timestamp:  time.Now().UTC(),
		Data:       data,
	}
	if err := b.emitter.Emit(ctx, r); err != nil {
		b.logger.Warn("dropping result", "error", err, "frame_index", f.FrameIndex)
	}
	return nil
}

// channelSamples calibrates the processor's own channel.
func (b *baseProcessor) channelSamples(f *frame.Frame) []float64 {
	return b.calibrations.Channel(f, b.channel)
}
