package control

import (
	"context"
	"encoding/json"
	"time"

	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/recording"
)

// openRecordingEntry is the KV mirror payload for one open session.
type openRecordingEntry struct {
	RecordingID uint      `json:"recording_id"`
	Project     string    `json:"project"`
	Model       string    `json:"model"`
	Filename    string    `json:"filename"`
	StartTime   time.Time `json:"start_time"`
}

// StartRecording opens a new recording session for a model and
// publishes the epoch so the router begins persisting its frames.
// RecordingClosed-free invariant: at most one open session per model.
func (p *Plane) StartRecording(ctx context.Context, owner, projectName, modelName string) (*recording.Recording, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	project, model, err := p.findModel(owner, projectName, modelName)
	if err != nil {
		return nil, err
	}
	if rec, err := p.deps.Recordings.FindOpen(project.Name, model.Name); err == nil {
		return nil, errors.WrapInvalid(errors.ErrConfigConflict,
			"ControlPlane", "StartRecording", "recording "+rec.Filename+" already open")
	}

	rec, err := p.deps.Recordings.Begin(project.Name, model.Name)
	if err != nil {
		return nil, err
	}
	if err := p.rebuildLocked(ctx); err != nil {
		return nil, err
	}
	p.mirrorPut(ctx, rec)

	p.deps.Logger.Info("recording started",
		"project", project.Name, "model", model.Name, "filename", rec.Filename)
	return rec, nil
}

// StopRecording flushes the writer queue, closes the recording, and
// publishes the epoch so the router stops persisting. Synchronous:
// returns only after queued appends for the session have landed.
func (p *Plane) StopRecording(ctx context.Context, recordingID uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopRecordingLocked(ctx, recordingID)
}

func (p *Plane) stopRecordingLocked(ctx context.Context, recordingID uint) error {
	rec, err := p.deps.Recordings.Get(recordingID)
	if err != nil {
		return err
	}

	if err := p.deps.Writer.Flush(p.deps.StopTimeout); err != nil {
		return errors.Wrap(err, "ControlPlane", "StopRecording", "flushing writer queue")
	}
	if err := p.deps.Recordings.End(recordingID); err != nil {
		return err
	}
	if err := p.rebuildLocked(ctx); err != nil {
		return err
	}
	p.mirrorDelete(ctx, rec)

	p.deps.Logger.Info("recording stopped",
		"project", rec.Project, "model", rec.Model, "filename", rec.Filename)
	return nil
}

// DistinctFilenames lists a model's recording filenames in numeric
// order.
func (p *Plane) DistinctFilenames(projectName, modelName string) ([]string, error) {
	return p.deps.Recordings.DistinctFilenames(projectName, modelName)
}

// mirrorOpenRecordings writes every open session to the KV bucket.
// Called on Start so a restarted node exposes sessions that survived
// it. Callers hold p.mu.
func (p *Plane) mirrorOpenRecordings(ctx context.Context) {
	if p.kv == nil {
		return
	}
	open, err := p.deps.Recordings.OpenRecordings()
	if err != nil {
		p.deps.Logger.Warn("open-recordings reconcile skipped", "error", err)
		return
	}
	for i := range open {
		p.mirrorPut(ctx, &open[i])
	}
}

func (p *Plane) mirrorPut(ctx context.Context, rec *recording.Recording) {
	if p.kv == nil {
		return
	}
	payload, err := json.Marshal(openRecordingEntry{
		RecordingID: rec.ID,
		Project:     rec.Project,
		Model:       rec.Model,
		Filename:    rec.Filename,
		StartTime:   rec.StartTime,
	})
	if err != nil {
		return
	}
	if _, err := p.kv.Put(ctx, mirrorKey(rec), payload); err != nil {
		p.deps.Logger.Warn("open-recordings mirror put failed",
			"recording_id", rec.ID, "error", err)
	}
}

func (p *Plane) mirrorDelete(ctx context.Context, rec *recording.Recording) {
	if p.kv == nil {
		return
	}
	if err := p.kv.Delete(ctx, mirrorKey(rec)); err != nil {
		p.deps.Logger.Warn("open-recordings mirror delete failed",
			"recording_id", rec.ID, "error", err)
	}
}

func mirrorKey(rec *recording.Recording) string {
	return rec.Project + "." + rec.Model
}
