package analytics

import (
	"math"
	"time"

	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/frame"
	"github.com/c360/vibstreams/recording"
)

// FrequencyViewerMaxPoints caps the downsampled tacho-frequency curve
// length.
const FrequencyViewerMaxPoints = 100000

// FrequencyView is the downsampled tacho-frequency column of a
// recording range, with per-frame boundaries for crosshair lookup.
type FrequencyView struct {
	// Values is the mean-downsampled tacho frequency sequence.
	Values []float64 `json:"values"`
	// Stride is the downsampling factor applied.
	Stride int `json:"stride"`
	// Frames lists (frame_index, created_at) of every loaded frame
	// in order.
	Frames []FrameMarker `json:"frames"`
}

// FrameMarker locates one frame on the recording timeline.
type FrameMarker struct {
	FrameIndex uint32    `json:"frame_index"`
	Time       time.Time `json:"time"`
}

// FrameSource is the recording-store surface the viewer reads.
type FrameSource interface {
	Query(recordingID uint, opts recording.QueryOptions) ([]*frame.Frame, error)
}

// FrequencyViewer selects recording-time ranges by shaft frequency.
type FrequencyViewer struct {
	source    FrameSource
	maxPoints int
}

// NewFrequencyViewer reads frames from the given source.
func NewFrequencyViewer(source FrameSource) *FrequencyViewer {
	return &FrequencyViewer{source: source, maxPoints: FrequencyViewerMaxPoints}
}

// Load concatenates the tacho-frequency column of the selected
// frame-index range and downsamples it by windowed mean.
func (v *FrequencyViewer) Load(recordingID uint, frameStart, frameStop *uint32) (*FrequencyView, error) {
	frames, err := v.source.Query(recordingID, recording.QueryOptions{
		FrameStart: frameStart,
		FrameStop:  frameStop,
	})
	if err != nil {
		return nil, errors.Wrap(err, "FrequencyViewer", "Load", "querying recording")
	}
	if len(frames) == 0 {
		return &FrequencyView{Stride: 1}, nil
	}

	var total int
	for _, f := range frames {
		total += len(f.TachoFreq)
	}

	stride := 1
	if total > v.maxPoints {
		stride = (total + v.maxPoints - 1) / v.maxPoints
	}

	view := &FrequencyView{
		Values: make([]float64, 0, total/stride+1),
		Stride: stride,
		Frames: make([]FrameMarker, 0, len(frames)),
	}

	var window float64
	var count int
	for _, f := range frames {
		view.Frames = append(view.Frames, FrameMarker{
			FrameIndex: f.FrameIndex,
			Time:       f.CreatedAt,
		})
		for _, s := range f.TachoFreq {
			window += float64(s)
			count++
			if count == stride {
				view.Values = append(view.Values, window/float64(count))
				window, count = 0, 0
			}
		}
	}
	if count > 0 {
		view.Values = append(view.Values, window/float64(count))
	}
	return view, nil
}

// ClosestFrame resolves a crosshair time to the loaded frame with the
// smallest absolute time distance. ok is false for an empty view.
func (view *FrequencyView) ClosestFrame(at time.Time) (FrameMarker, bool) {
	if len(view.Frames) == 0 {
		return FrameMarker{}, false
	}
	best := view.Frames[0]
	bestDist := math.Abs(float64(at.Sub(best.Time)))
	for _, m := range view.Frames[1:] {
		d := math.Abs(float64(at.Sub(m.Time)))
		if d < bestDist {
			best = m
			bestDist = d
		}
	}
	return best, true
}
