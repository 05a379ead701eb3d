// Package analytics implements the derived-signal processors:
// stateful per-(feature, model, channel) machines consuming frames in
// frame_index order and emitting typed results. Signal-processing
// primitives live in the dsp subpackage.
package analytics

import "github.com/c360/vibstreams/frame"

// adcScale converts a raw 16-bit ADC count into volts.
const adcScale = 3.3 / 65535.0

// Calibration converts raw channel counts into engineering units.
type Calibration struct {
	Correction  float64 `json:"correction"`
	Gain        float64 `json:"gain"`
	Sensitivity float64 `json:"sensitivity"`
	Unit        string  `json:"unit"` // mil, mm, um
}

// DefaultCalibration is the identity conversion used for channels with
// no stored calibration.
func DefaultCalibration() Calibration {
	return Calibration{Correction: 1, Gain: 1, Sensitivity: 1, Unit: "mil"}
}

// Value converts one raw sample.
func (c Calibration) Value(s uint16) float64 {
	if c.Sensitivity == 0 {
		return 0
	}
	return float64(s) * adcScale * c.Correction * c.Gain / c.Sensitivity
}

// Apply converts a whole sample slice.
func (c Calibration) Apply(samples []uint16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = c.Value(s)
	}
	return out
}

// CalibrationSet maps channel index to calibration.
type CalibrationSet map[int]Calibration

// For returns the calibration for a channel, defaulting to identity.
func (cs CalibrationSet) For(channel int) Calibration {
	if c, ok := cs[channel]; ok {
		return c
	}
	return DefaultCalibration()
}

// Channel calibrates main channel i of the frame. Returns nil when the
// channel does not exist.
func (cs CalibrationSet) Channel(f *frame.Frame, i int) []float64 {
	raw := f.Channel(i)
	if raw == nil {
		return nil
	}
	return cs.For(i).Apply(raw)
}

// ConvertUnit rescales a value measured in mil for presentation.
func ConvertUnit(value float64, unit string) float64 {
	switch unit {
	case "mm":
		return value / 25.4
	case "um":
		return value * 25.4 * 1000
	default:
		return value
	}
}
