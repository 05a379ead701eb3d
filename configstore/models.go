// Package configstore persists projects, their models and channels,
// tag bindings, and analysis settings. Backed by SQLite through gorm;
// the recording store shares the same database so tag renames can
// rewrite persisted frame topics in one transaction.
package configstore

import "time"

// Project is the top-level configuration unit. Uniqueness is enforced
// per owner.
type Project struct {
	ID        uint   `gorm:"primaryKey"`
	Owner     string `gorm:"uniqueIndex:uniq_owner_name;size:128"`
	Name      string `gorm:"uniqueIndex:uniq_owner_name;size:128"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Models []Model `gorm:"constraint:OnDelete:CASCADE"`
}

// Model is a monitored machine within a project. Its Tag binds it to a
// bus topic; tags are unique per owner. Owner is denormalized from the
// project so the (owner, tag) uniqueness lives in one index.
type Model struct {
	ID           uint   `gorm:"primaryKey"`
	ProjectID    uint   `gorm:"index"`
	Owner        string `gorm:"uniqueIndex:uniq_owner_tag;size:128"`
	Name         string `gorm:"index;size:128"`
	Tag          string `gorm:"uniqueIndex:uniq_owner_tag;size:256"`
	ChannelCount int    // 4, 8 or 10; must match len(Channels)
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Channels []Channel `gorm:"constraint:OnDelete:CASCADE"`
}

// Angle directions for Channel.AngleDirection.
const (
	AngleLeft  = "left"
	AngleRight = "right"
)

// Channel holds per-channel calibration and placement. Index is the
// channel's position within the frame's main channels.
type Channel struct {
	ID      uint   `gorm:"primaryKey"`
	ModelID uint   `gorm:"index"`
	Index   int    `gorm:"index"`
	Name    string `gorm:"size:128"`

	CorrectionValue float64
	Gain            float64
	Sensitivity     float64
	Unit            string `gorm:"size:16"` // mil, mm, um

	Angle          float64
	AngleDirection string `gorm:"size:8"` // left, right
	Shaft          string `gorm:"size:128"`
}

// SettingsRecord is one saved settings payload for a (kind, project)
// pair. The latest row by UpdatedAt wins; invalid payloads are never
// written, so the previous values survive a rejected update.
type SettingsRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Kind      string    `gorm:"index:idx_kind_project;size:32"`
	ProjectID uint      `gorm:"index:idx_kind_project"`
	Payload   string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"index"`
}

// Settings kinds.
const (
	SettingsKindFFT     = "fft"
	SettingsKindTabular = "tabular"
)
