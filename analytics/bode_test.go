package analytics

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vibstreams/feature"
)

func TestBodeBinsByRoundedFrequency(t *testing.T) {
	base, em := newTestBase(t, feature.Bode, 0)
	p := NewBodeProcessor(base)

	// 256-sample frames at 256 Hz with triggers every 64 samples: all
	// segments land in the 4.00 Hz bin.
	for i := 0; i < 3; i++ {
		f := testFrame(t, [][]uint16{sineChannel(256, 4, 256, 1000)}, 256, 0, 64)
		f.FrameIndex = uint32(i)
		require.NoError(t, p.Process(context.Background(), f))
	}

	results := em.Results()
	require.Len(t, results, 3)
	data := results[2].Data.(BodeData)
	require.Len(t, data.Points, 1)
	assert.InDelta(t, 4.0, data.Points[0].Frequency, 1e-9)
	assert.InDelta(t, 1000*(3.3/65535.0), data.Points[0].Amplitude, 1000*(3.3/65535.0)*0.05)
}

func TestBodeCurveSortedAndSmoothed(t *testing.T) {
	base, em := newTestBase(t, feature.Bode, 0)
	p := NewBodeProcessor(base)

	// Vary segment length across frames so several frequency bins fill
	// up: 32-sample segments bin at 8 Hz, 64 at 4 Hz, 128 at 2 Hz.
	for _, every := range []int{128, 32, 64} {
		f := testFrame(t, [][]uint16{sineChannel(256, 4, 256, 1000)}, 256, 0, every)
		require.NoError(t, p.Process(context.Background(), f))
	}

	results := em.Results()
	data := results[len(results)-1].Data.(BodeData)
	require.Len(t, data.Points, 3)
	assert.True(t, sort.SliceIsSorted(data.Points, func(i, j int) bool {
		return data.Points[i].Frequency < data.Points[j].Frequency
	}))
	assert.Equal(t, []float64{2, 4, 8}, []float64{
		data.Points[0].Frequency,
		data.Points[1].Frequency,
		data.Points[2].Frequency,
	})
}

func TestSmoothBodeMovingAverage(t *testing.T) {
	points := make([]BodePoint, 10)
	for i := range points {
		points[i] = BodePoint{Frequency: float64(i), Amplitude: float64(i)}
	}
	smoothed := smoothBode(points, 7)
	require.Len(t, smoothed, 10)

	// Interior points average a full centered window.
	assert.InDelta(t, 5.0, smoothed[5].Amplitude, 1e-9)
	// Edges shrink the window instead of padding.
	assert.InDelta(t, (0+1+2+3)/4.0, smoothed[0].Amplitude, 1e-9)
	// Frequencies never move.
	for i, pt := range smoothed {
		assert.Equal(t, float64(i), pt.Frequency)
	}
}

func TestBodeSkipsUntriggeredFrames(t *testing.T) {
	base, em := newTestBase(t, feature.Bode, 0)
	p := NewBodeProcessor(base)
	f := testFrame(t, [][]uint16{sineChannel(256, 4, 256, 1000)}, 256, 0, 0)
	require.NoError(t, p.Process(context.Background(), f))
	assert.Empty(t, em.Results())
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 9.99, roundTo(9.985001, 2))
	assert.Equal(t, 10.0, roundTo(9.999, 2))
	assert.Equal(t, 4.0, roundTo(256.0/64.0, 2))
	assert.False(t, math.Signbit(roundTo(0.0001, 2)))
}
