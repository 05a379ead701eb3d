package frame

// Tacho trigger extraction. A trigger pulse marks the start of a shaft
// revolution; samples between two consecutive pulses form one segment
// for synchronous analysis.

const (
	// DefaultTriggerThreshold is the minimum word value counted as a pulse.
	DefaultTriggerThreshold uint16 = 1

	// DefaultMinTriggerGap coalesces pulses closer than this many samples.
	DefaultMinTriggerGap = 5
)

// Segment is a half-open sample range [Start, End) between two
// consecutive trigger pulses.
type Segment struct {
	Start int
	End   int
}

// Len returns the number of samples in the segment.
func (s Segment) Len() int { return s.End - s.Start }

// TriggerIndices returns the sample indices of trigger pulses in the
// sequence. A sample is a pulse when its value >= threshold; pulses
// closer than minGap samples to the previous accepted pulse are
// coalesced into it.
func TriggerIndices(trigger []uint16, threshold uint16, minGap int) []int {
	if threshold < 1 {
		threshold = DefaultTriggerThreshold
	}
	if minGap < 1 {
		minGap = DefaultMinTriggerGap
	}

	var indices []int
	last := -minGap - 1
	for i, v := range trigger {
		if v < threshold {
			continue
		}
		if i-last < minGap {
			continue
		}
		indices = append(indices, i)
		last = i
	}
	return indices
}

// Triggers extracts pulse indices from the frame's trigger sequence
// with default threshold and coalescing gap.
func (f *Frame) Triggers() []int {
	if len(f.TachoTrigger) == 0 {
		return nil
	}
	return TriggerIndices(f.TachoTrigger, DefaultTriggerThreshold, DefaultMinTriggerGap)
}

// SegmentsFromTriggers converts trigger indices into revolution
// segments. Fewer than two triggers yield no segments.
func SegmentsFromTriggers(indices []int) []Segment {
	if len(indices) < 2 {
		return nil
	}
	segments := make([]Segment, 0, len(indices)-1)
	for k := 0; k+1 < len(indices); k++ {
		segments = append(segments, Segment{Start: indices[k], End: indices[k+1]})
	}
	return segments
}

// SyntheticTriggers places evenly spaced markers when no trigger
// sequence is present but a rotation frequency estimate is available.
// Markers are spaced samplesPerChannel/fEstimate samples apart.
func SyntheticTriggers(samplesPerChannel int, fEstimate float64) []int {
	if samplesPerChannel <= 0 || fEstimate <= 0 {
		return nil
	}
	interval := int(float64(samplesPerChannel) / fEstimate)
	if interval < 1 {
		return nil
	}
	var indices []int
	for i := 0; i < samplesPerChannel; i += interval {
		indices = append(indices, i)
	}
	return indices
}

// Segments returns the frame's revolution segments: real triggers when
// the frame carries a trigger sequence, synthetic markers from the
// tacho frequency estimate otherwise. Returns nil when neither source
// is available or fewer than two markers exist.
func (f *Frame) Segments() []Segment {
	if len(f.TachoTrigger) > 0 {
		return SegmentsFromTriggers(f.Triggers())
	}
	if len(f.TachoFreq) > 0 {
		return SegmentsFromTriggers(SyntheticTriggers(f.SamplesPerChannel, f.MeanTachoFreq()))
	}
	return nil
}
