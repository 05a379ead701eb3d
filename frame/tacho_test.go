package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerIndicesCoalescesNearbyPulses(t *testing.T) {
	trigger := make([]uint16, 100)
	// A pulse spanning several samples counts once.
	trigger[10] = 65535
	trigger[11] = 65535
	trigger[12] = 40000
	trigger[50] = 1 // threshold is inclusive
	trigger[53] = 1 // within gap of 50, coalesced
	trigger[90] = 65535

	indices := TriggerIndices(trigger, DefaultTriggerThreshold, DefaultMinTriggerGap)
	assert.Equal(t, []int{10, 50, 90}, indices)
}

func TestTriggerIndicesCustomThreshold(t *testing.T) {
	trigger := []uint16{0, 100, 0, 0, 0, 0, 50000, 0}

	assert.Equal(t, []int{6}, TriggerIndices(trigger, 1000, DefaultMinTriggerGap))
	assert.Equal(t, []int{1, 6}, TriggerIndices(trigger, 1, DefaultMinTriggerGap))
}

func TestTriggerIndicesEmpty(t *testing.T) {
	assert.Nil(t, TriggerIndices(nil, 1, 5))
	assert.Nil(t, TriggerIndices(make([]uint16, 64), 1, 5))
}

func TestSegmentsFromTriggers(t *testing.T) {
	segments := SegmentsFromTriggers([]int{0, 410, 820})
	require.Len(t, segments, 2)
	assert.Equal(t, Segment{Start: 0, End: 410}, segments[0])
	assert.Equal(t, Segment{Start: 410, End: 820}, segments[1])
	assert.Equal(t, 410, segments[0].Len())

	assert.Nil(t, SegmentsFromTriggers([]int{7}))
	assert.Nil(t, SegmentsFromTriggers(nil))
}

func TestSyntheticTriggers(t *testing.T) {
	// 4096 samples at 10 Hz rotation: a marker every 409 samples.
	indices := SyntheticTriggers(4096, 10)
	require.NotEmpty(t, indices)
	assert.Equal(t, 0, indices[0])
	assert.Equal(t, 409, indices[1])
	assert.Len(t, indices, 11)

	assert.Nil(t, SyntheticTriggers(0, 10))
	assert.Nil(t, SyntheticTriggers(4096, 0))
	// Estimate above the sample count would need sub-sample spacing.
	assert.Nil(t, SyntheticTriggers(10, 20))
}

func TestFrameSegmentsPrefersRealTriggers(t *testing.T) {
	f := &Frame{
		SamplesPerChannel: 100,
		TachoFreq:         constant(100, 10), // would synthesize every 10
		TachoTrigger:      make([]uint16, 100),
	}
	f.TachoTrigger[5] = 65535
	f.TachoTrigger[55] = 65535

	segments := f.Segments()
	require.Len(t, segments, 1)
	assert.Equal(t, Segment{Start: 5, End: 55}, segments[0])
}

func TestFrameSegmentsSyntheticFallback(t *testing.T) {
	f := &Frame{
		SamplesPerChannel: 100,
		TachoFreq:         constant(100, 4),
	}

	segments := f.Segments()
	require.Len(t, segments, 3)
	assert.Equal(t, Segment{Start: 0, End: 25}, segments[0])
	assert.Equal(t, Segment{Start: 50, End: 75}, segments[2])
}

func TestFrameSegmentsNoTachoData(t *testing.T) {
	f := &Frame{SamplesPerChannel: 100}
	assert.Nil(t, f.Segments())
}

func constant(n int, v uint16) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}
