package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOutOrderIsStable(t *testing.T) {
	want := []Feature{
		Tabular, TimeView, TimeReport, MultiTrend,
		Trend, Centerline, FFT, Orbit,
		Bode, History, Polar, Report,
	}
	assert.Equal(t, want, FanOutOrder)
}

func TestStringParseRoundTrip(t *testing.T) {
	for _, f := range FanOutOrder {
		got, err := Parse(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	_, err := Parse("waterfall")
	assert.Error(t, err)
}

func TestChannelScope(t *testing.T) {
	assert.True(t, Tabular.AllChannels())
	assert.True(t, MultiTrend.AllChannels())
	assert.False(t, FFT.AllChannels())
	assert.False(t, Orbit.AllChannels())
	assert.False(t, Bode.AllChannels())
}

func TestDerivedSubject(t *testing.T) {
	assert.Equal(t, "derived.fft.motor1.2", DerivedSubject(FFT, "motor1", 2))
	assert.Equal(t, "derived.tabular.motor1.all", DerivedSubject(Tabular, "motor1", 5))
}
