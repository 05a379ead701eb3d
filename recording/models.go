// Package recording implements the append-only frame store. Each
// recording session ("data<N>") collects frames in strict frame_index
// order; frame bodies are stored as their original encoded bytes so a
// read returns exactly what the wire carried.
package recording

import "time"

// Recording is one capture session for a (project, model) pair.
type Recording struct {
	ID       uint   `gorm:"primaryKey"`
	Project  string `gorm:"index:idx_rec_proj_model;uniqueIndex:uniq_rec_file;size:128"`
	Model    string `gorm:"index:idx_rec_proj_model;uniqueIndex:uniq_rec_file;size:128"`
	Filename string `gorm:"uniqueIndex:uniq_rec_file;size:64"`

	StartTime time.Time
	EndTime   *time.Time `gorm:"index"`

	// Gapped is set when the writer queue overflowed and at least one
	// frame of this session was never persisted.
	Gapped bool
}

// Open reports whether the recording still accepts appends.
func (r *Recording) Open() bool { return r.EndTime == nil }

// FrameRecord is one persisted frame.
type FrameRecord struct {
	ID          uint      `gorm:"primaryKey"`
	RecordingID uint      `gorm:"index;uniqueIndex:uniq_rec_frame"`
	Topic       string    `gorm:"index;size:256"`
	FrameIndex  uint32    `gorm:"index;uniqueIndex:uniq_rec_frame"`
	RecvTime    time.Time `gorm:"index"`
	Payload     []byte    `gorm:"type:blob"`
}
