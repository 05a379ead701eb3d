package control

import (
	"context"

	"github.com/c360/vibstreams/analytics"
	"github.com/c360/vibstreams/feature"
)

// Subscribe opens a sink for one (feature, model, channel) and returns
// its handle. The processor is built from the model's calibration table
// and the project's latest settings. channel is ignored for
// all-channel features.
func (p *Plane) Subscribe(ctx context.Context, f feature.Feature,
	owner, projectName, modelName string, channel int) (string, error) {

	project, model, err := p.findModel(owner, projectName, modelName)
	if err != nil {
		return "", err
	}

	cal := make(analytics.CalibrationSet, len(model.Channels))
	for _, ch := range model.Channels {
		cal[ch.Index] = analytics.Calibration{
			Correction:  ch.CorrectionValue,
			Gain:        ch.Gain,
			Sensitivity: ch.Sensitivity,
			Unit:        ch.Unit,
		}
	}

	factory, err := p.deps.Engine.Factory(f, owner, project.Name, model.Name, channel, cal)
	if err != nil {
		return "", err
	}
	return p.deps.Subs.Subscribe(ctx, f, model.Name, channel, factory)
}

// Unsubscribe releases a sink handle. Idempotent.
func (p *Plane) Unsubscribe(id string) error {
	return p.deps.Subs.Unsubscribe(id)
}
