package control

import (
	"time"

	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/frame"
	"github.com/c360/vibstreams/recording"
)

// defaultCursorBatch is the page size of a frame cursor.
const defaultCursorBatch = 64

// FrameQuery selects frames from a model's recordings.
type FrameQuery struct {
	Project  string
	Model    string
	Filename string // empty means the latest recording

	FrameStart *uint32
	FrameStop  *uint32 // inclusive
	TimeStart  *time.Time
	TimeStop   *time.Time // inclusive

	// BatchSize is the cursor page size; defaultCursorBatch when zero.
	BatchSize int
}

// FrameCursor pages through a recording in frame_index order. Pages
// reflect the store at read time; appends racing the cursor appear in
// later pages.
type FrameCursor struct {
	store       *recording.Store
	recordingID uint
	opts        recording.QueryOptions
	batch       int
	next        *uint32 // frame index the next page starts at
	done        bool
}

// GetFrames resolves the query's recording and returns a cursor.
func (p *Plane) GetFrames(q FrameQuery) (*FrameCursor, error) {
	filename := q.Filename
	if filename == "" {
		names, err := p.deps.Recordings.DistinctFilenames(q.Project, q.Model)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, errors.WrapInvalid(errors.ErrRecordingNotFound,
				"ControlPlane", "GetFrames", "no recordings for "+q.Project+"/"+q.Model)
		}
		filename = names[len(names)-1]
	}

	rec, err := p.deps.Recordings.GetByName(q.Project, q.Model, filename)
	if err != nil {
		return nil, err
	}

	batch := q.BatchSize
	if batch <= 0 {
		batch = defaultCursorBatch
	}
	return &FrameCursor{
		store:       p.deps.Recordings,
		recordingID: rec.ID,
		opts: recording.QueryOptions{
			FrameStart: q.FrameStart,
			FrameStop:  q.FrameStop,
			TimeStart:  q.TimeStart,
			TimeStop:   q.TimeStop,
		},
		batch: batch,
		next:  q.FrameStart,
	}, nil
}

// Next returns the next page of frames. An empty page with nil error
// means the cursor is exhausted.
func (c *FrameCursor) Next() ([]*frame.Frame, error) {
	if c.done {
		return nil, nil
	}

	opts := c.opts
	opts.FrameStart = c.next
	frames, err := c.store.Query(c.recordingID, opts)
	if err != nil {
		return nil, err
	}
	if len(frames) > c.batch {
		frames = frames[:c.batch]
	}
	if len(frames) == 0 {
		c.done = true
		return nil, nil
	}

	after := frames[len(frames)-1].FrameIndex + 1
	c.next = &after
	if len(frames) < c.batch {
		c.done = true
	}
	return frames, nil
}
