package configstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vibstreams/errors"
)

func TestFFTSettingsValidate(t *testing.T) {
	valid := DefaultFFTSettings()
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*FFTSettings)
	}{
		{"bad window", func(s *FFTSettings) { s.WindowType = "kaiser" }},
		{"bad averaging", func(s *FFTSettings) { s.AveragingMode = "peak" }},
		{"bad weighting", func(s *FFTSettings) { s.Weighting = "D" }},
		{"bad linear mode", func(s *FFTSettings) { s.LinearMode = "hold" }},
		{"zero averages", func(s *FFTSettings) { s.Averages = 0 }},
		{"too many averages", func(s *FFTSettings) { s.Averages = 101 }},
		{"zero lines", func(s *FFTSettings) { s.NumberOfLines = 0 }},
		{"too many lines", func(s *FFTSettings) { s.NumberOfLines = 4000 }},
		{"overlap past limit", func(s *FFTSettings) { s.OverlapPct = 100 }},
		{"negative start", func(s *FFTSettings) { s.StartHz = -1 }},
		{"start at stop", func(s *FFTSettings) { s.StartHz = 100; s.StopHz = 100 }},
		{"start above stop", func(s *FFTSettings) { s.StartHz = 200; s.StopHz = 100 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultFFTSettings()
			tc.mutate(&s)
			assert.ErrorIs(t, s.Validate(), errors.ErrSettingsInvalid)
		})
	}
}

func TestTabularSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultTabularSettings().Validate())

	bad := TabularSettings{Bandpass: BandpassBand, BandLowHz: 300, BandHighHz: 100, Harmonics: 3}
	assert.ErrorIs(t, bad.Validate(), errors.ErrSettingsInvalid)

	bad = TabularSettings{Bandpass: BandpassBand, BandLowHz: 50, BandHighHz: 200, Harmonics: 0}
	assert.ErrorIs(t, bad.Validate(), errors.ErrSettingsInvalid)

	bad = TabularSettings{Bandpass: "wide", BandLowHz: 50, BandHighHz: 200, Harmonics: 3}
	assert.ErrorIs(t, bad.Validate(), errors.ErrSettingsInvalid)

	// Bypassed band-pass ignores the edges entirely.
	none := TabularSettings{Bandpass: BandpassNone, Harmonics: 3}
	assert.NoError(t, none.Validate())
}

func TestTabularSettingsColumnVisibilityRoundTrip(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateProject(sampleProject("alice", "plant-a", "tag1")))

	saved := DefaultTabularSettings()
	saved.ColumnVisibility = map[string]bool{"gap_voltage": false, "direct": true}
	require.NoError(t, s.SaveTabularSettings("alice", "plant-a", saved))

	got, err := s.LatestTabularSettings("alice", "plant-a")
	require.NoError(t, err)
	assert.Equal(t, saved.ColumnVisibility, got.ColumnVisibility)
	assert.Equal(t, BandpassBand, got.Bandpass)
}

func TestSettingsLatestWins(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateProject(sampleProject("alice", "plant-a", "tag1")))

	first := DefaultFFTSettings()
	first.NumberOfLines = 200
	require.NoError(t, s.SaveFFTSettings("alice", "plant-a", first))

	second := DefaultFFTSettings()
	second.NumberOfLines = 800
	second.AveragingMode = AveragingExponential
	second.Averages = 4
	require.NoError(t, s.SaveFFTSettings("alice", "plant-a", second))

	got, err := s.LatestFFTSettings("alice", "plant-a")
	require.NoError(t, err)
	assert.Equal(t, 800, got.NumberOfLines)
	assert.Equal(t, AveragingExponential, got.AveragingMode)
}

func TestInvalidSettingsKeepPrevious(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateProject(sampleProject("alice", "plant-a", "tag1")))

	good := DefaultFFTSettings()
	good.StartHz = 10
	good.StopHz = 500
	require.NoError(t, s.SaveFFTSettings("alice", "plant-a", good))

	bad := good
	bad.StartHz = 500
	bad.StopHz = 500
	err := s.SaveFFTSettings("alice", "plant-a", bad)
	assert.ErrorIs(t, err, errors.ErrSettingsInvalid)

	got, err := s.LatestFFTSettings("alice", "plant-a")
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.StartHz)
	assert.Equal(t, 500.0, got.StopHz)
}

func TestSettingsDefaultsWhenUnsaved(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateProject(sampleProject("alice", "plant-a", "tag1")))

	fft, err := s.LatestFFTSettings("alice", "plant-a")
	require.NoError(t, err)
	assert.Equal(t, DefaultFFTSettings(), fft)

	tab, err := s.LatestTabularSettings("alice", "plant-a")
	require.NoError(t, err)
	assert.Equal(t, DefaultTabularSettings(), tab)
}

func TestSettingsUnknownProject(t *testing.T) {
	s := openTestStore(t)

	err := s.SaveFFTSettings("alice", "missing", DefaultFFTSettings())
	assert.ErrorIs(t, err, errors.ErrProjectNotFound)
}
