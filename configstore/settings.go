package configstore

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/c360/vibstreams/errors"
)

// Window types accepted by the FFT settings.
var windowTypes = map[string]bool{
	"none":        true,
	"rectangular": true,
	"hamming":     true,
	"hanning":     true,
	"blackman":    true,
	"flattop":     true,
}

// Averaging modes.
const (
	AveragingNone        = "none"
	AveragingLinear      = "linear"
	AveragingExponential = "exponential"
)

// Weighting curves.
const (
	WeightingLinear = "linear"
	WeightingA      = "A"
	WeightingB      = "B"
	WeightingC      = "C"
)

// Linear averaging sub-modes.
const (
	LinearContinuous = "continuous"
	LinearPeakHold   = "peak_hold"
	LinearTimeSync   = "time_sync"
)

// FFTSettings controls the FFT feature pipeline.
type FFTSettings struct {
	WindowType    string  `json:"window_type"`
	Averages      int     `json:"averages"`
	AveragingMode string  `json:"averaging_mode"`
	LinearMode    string  `json:"linear_mode"`
	NumberOfLines int     `json:"number_of_lines"`
	OverlapPct    float64 `json:"overlap_pct"`
	StartHz       float64 `json:"start_hz"`
	StopHz        float64 `json:"stop_hz"` // 0 means up to Nyquist
	Weighting     string  `json:"weighting"`
}

// DefaultFFTSettings returns the values used before any save.
func DefaultFFTSettings() FFTSettings {
	return FFTSettings{
		WindowType:    "hanning",
		Averages:      1,
		AveragingMode: AveragingNone,
		LinearMode:    LinearContinuous,
		NumberOfLines: 400,
		OverlapPct:    0,
		StartHz:       0,
		StopHz:        0,
		Weighting:     WeightingLinear,
	}
}

// Validate rejects settings that cannot drive the FFT pipeline.
func (s FFTSettings) Validate() error {
	if !windowTypes[s.WindowType] {
		return fmt.Errorf("%w: window_type %q", errors.ErrSettingsInvalid, s.WindowType)
	}
	switch s.AveragingMode {
	case AveragingNone, AveragingLinear, AveragingExponential:
	default:
		return fmt.Errorf("%w: averaging_mode %q", errors.ErrSettingsInvalid, s.AveragingMode)
	}
	switch s.Weighting {
	case WeightingLinear, WeightingA, WeightingB, WeightingC:
	default:
		return fmt.Errorf("%w: weighting %q", errors.ErrSettingsInvalid, s.Weighting)
	}
	switch s.LinearMode {
	case LinearContinuous, LinearPeakHold, LinearTimeSync:
	default:
		return fmt.Errorf("%w: linear_mode %q", errors.ErrSettingsInvalid, s.LinearMode)
	}
	if s.Averages < 1 || s.Averages > 100 {
		return fmt.Errorf("%w: averages %d", errors.ErrSettingsInvalid, s.Averages)
	}
	if s.NumberOfLines < 100 || s.NumberOfLines > 3200 {
		return fmt.Errorf("%w: number_of_lines %d", errors.ErrSettingsInvalid, s.NumberOfLines)
	}
	if s.OverlapPct < 0 || s.OverlapPct > 99.9 {
		return fmt.Errorf("%w: overlap_pct %g", errors.ErrSettingsInvalid, s.OverlapPct)
	}
	if s.StartHz < 0 {
		return fmt.Errorf("%w: start_hz %g", errors.ErrSettingsInvalid, s.StartHz)
	}
	if s.StopHz != 0 && s.StartHz >= s.StopHz {
		return fmt.Errorf("%w: start_hz %g >= stop_hz %g", errors.ErrSettingsInvalid, s.StartHz, s.StopHz)
	}
	return nil
}

// Bandpass modes. BandpassNone bypasses the band-pass stage and the
// band edges are ignored.
const (
	BandpassNone = "none"
	BandpassBand = "band"
)

// TabularSettings controls the filtered-waveform feature.
// ColumnVisibility maps a column name to whether clients should show
// it; columns absent from the map stay visible.
type TabularSettings struct {
	Bandpass         string          `json:"bandpass"` // none, band
	BandLowHz        float64         `json:"band_low_hz"`
	BandHighHz       float64         `json:"band_high_hz"`
	Harmonics        int             `json:"harmonics"`
	ColumnVisibility map[string]bool `json:"column_visibility,omitempty"`
}

// DefaultTabularSettings returns the values used before any save.
func DefaultTabularSettings() TabularSettings {
	return TabularSettings{
		Bandpass:   BandpassBand,
		BandLowHz:  50,
		BandHighHz: 200,
		Harmonics:  3,
	}
}

// Validate rejects settings outside the supported band-pass range. The
// band edges are only checked when the band-pass stage is active.
func (s TabularSettings) Validate() error {
	switch s.Bandpass {
	case BandpassNone, BandpassBand:
	default:
		return fmt.Errorf("%w: bandpass %q", errors.ErrSettingsInvalid, s.Bandpass)
	}
	if s.Bandpass == BandpassBand {
		if s.BandLowHz <= 0 || s.BandHighHz <= 0 || s.BandLowHz >= s.BandHighHz {
			return fmt.Errorf("%w: band %g-%g Hz", errors.ErrSettingsInvalid, s.BandLowHz, s.BandHighHz)
		}
	}
	if s.Harmonics < 1 {
		return fmt.Errorf("%w: harmonics %d", errors.ErrSettingsInvalid, s.Harmonics)
	}
	return nil
}

// SaveFFTSettings persists validated FFT settings for a project. A
// failed validation writes nothing, so the previous row stays current.
func (s *Store) SaveFFTSettings(owner, projectName string, settings FFTSettings) error {
	if err := settings.Validate(); err != nil {
		return errors.WrapInvalid(err, "ConfigStore", "SaveFFTSettings", "validate settings")
	}
	return s.saveSettings(owner, projectName, SettingsKindFFT, settings)
}

// SaveTabularSettings persists validated tabular settings for a project.
func (s *Store) SaveTabularSettings(owner, projectName string, settings TabularSettings) error {
	if err := settings.Validate(); err != nil {
		return errors.WrapInvalid(err, "ConfigStore", "SaveTabularSettings", "validate settings")
	}
	return s.saveSettings(owner, projectName, SettingsKindTabular, settings)
}

// LatestFFTSettings returns the most recently saved FFT settings for a
// project, or the defaults when none were saved.
func (s *Store) LatestFFTSettings(owner, projectName string) (FFTSettings, error) {
	settings := DefaultFFTSettings()
	err := s.latestSettings(owner, projectName, SettingsKindFFT, &settings)
	return settings, err
}

// LatestTabularSettings returns the most recently saved tabular
// settings for a project, or the defaults when none were saved.
func (s *Store) LatestTabularSettings(owner, projectName string) (TabularSettings, error) {
	settings := DefaultTabularSettings()
	err := s.latestSettings(owner, projectName, SettingsKindTabular, &settings)
	return settings, err
}

func (s *Store) saveSettings(owner, projectName, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "ConfigStore", "saveSettings", "marshal settings")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var p Project
		if err := tx.Where("owner = ? AND name = ?", owner, projectName).First(&p).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.WrapInvalid(
					fmt.Errorf("%w: %q owner %q", errors.ErrProjectNotFound, projectName, owner),
					"ConfigStore", "saveSettings", "locate project")
			}
			return errors.Wrap(err, "ConfigStore", "saveSettings", "locate project")
		}
		rec := SettingsRecord{Kind: kind, ProjectID: p.ID, Payload: string(data)}
		if err := tx.Create(&rec).Error; err != nil {
			return errors.Wrap(err, "ConfigStore", "saveSettings", "insert settings")
		}
		return nil
	})
}

func (s *Store) latestSettings(owner, projectName, kind string, out any) error {
	var p Project
	if err := s.db.Where("owner = ? AND name = ?", owner, projectName).First(&p).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q owner %q", errors.ErrProjectNotFound, projectName, owner),
				"ConfigStore", "latestSettings", "locate project")
		}
		return errors.Wrap(err, "ConfigStore", "latestSettings", "locate project")
	}

	var rec SettingsRecord
	err := s.db.Where("kind = ? AND project_id = ?", kind, p.ID).
		Order("updated_at DESC, id DESC").
		First(&rec).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil // defaults already in out
		}
		return errors.Wrap(err, "ConfigStore", "latestSettings", "load settings")
	}

	if err := json.Unmarshal([]byte(rec.Payload), out); err != nil {
		return errors.Wrap(err, "ConfigStore", "latestSettings", "unmarshal settings")
	}
	return nil
}
