package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vibstreams/analytics"
	"github.com/c360/vibstreams/configstore"
	"github.com/c360/vibstreams/feature"
	"github.com/c360/vibstreams/frame"
	"github.com/c360/vibstreams/recording"
	"github.com/c360/vibstreams/router"
	"github.com/c360/vibstreams/subscription"
)

type testPlane struct {
	plane   *Plane
	config  *configstore.Store
	recs    *recording.Store
	writer  *recording.Writer
	subs    *subscription.Manager
	router  *router.Router
	emitter *analytics.CollectEmitter
	cancel  context.CancelFunc
}

func newTestPlane(t *testing.T) *testPlane {
	t.Helper()

	db, err := configstore.OpenDB(":memory:")
	require.NoError(t, err)
	config := configstore.NewStore(db)

	recs, err := recording.NewStore(db, nil)
	require.NoError(t, err)
	writer := recording.NewWriter(recording.WriterDeps{Store: recs})

	subs := subscription.NewManager(subscription.ManagerDeps{})
	emitter := &analytics.CollectEmitter{}
	engine, err := analytics.NewEngine(analytics.EngineDeps{Settings: config, Emitter: emitter})
	require.NoError(t, err)

	rt := router.NewRouter(router.RouterDeps{Persister: writer, Deliverer: subs})

	plane, err := NewPlane(Deps{
		Config:      config,
		Recordings:  recs,
		Writer:      writer,
		Subs:        subs,
		Engine:      engine,
		Router:      rt,
		StopTimeout: 2 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, writer.Start(ctx))
	require.NoError(t, plane.Start(ctx))

	tp := &testPlane{
		plane: plane, config: config, recs: recs, writer: writer,
		subs: subs, router: rt, emitter: emitter, cancel: cancel,
	}
	t.Cleanup(func() {
		_ = writer.Stop(time.Second)
		_ = subs.Stop(time.Second)
		cancel()
	})
	return tp
}

func seedProject(t *testing.T, tp *testPlane) {
	t.Helper()
	require.NoError(t, tp.plane.CreateProject(context.Background(), &configstore.Project{
		Owner: "acme",
		Name:  "plant",
		Models: []configstore.Model{{
			Name:         "pump-1",
			Tag:          "daq.pump-1",
			ChannelCount: 4,
			Channels: []configstore.Channel{
				{Index: 0, Name: "DE-X", CorrectionValue: 1, Gain: 1, Sensitivity: 1, Unit: "mil", Angle: 0, AngleDirection: configstore.AngleLeft, Shaft: "shaft-1"},
				{Index: 1, Name: "DE-Y", CorrectionValue: 1, Gain: 1, Sensitivity: 1, Unit: "mil", Angle: 90, AngleDirection: configstore.AngleLeft, Shaft: "shaft-1"},
				{Index: 2, Name: "NDE-X", CorrectionValue: 1, Gain: 1, Sensitivity: 1, Unit: "mil", Angle: 0, AngleDirection: configstore.AngleRight, Shaft: "shaft-1"},
				{Index: 3, Name: "NDE-Y", CorrectionValue: 1, Gain: 1, Sensitivity: 1, Unit: "mil", Angle: 90, AngleDirection: configstore.AngleRight, Shaft: "shaft-1"},
			},
		}},
	}))
}

func testStoredFrame(index uint32) *frame.Frame {
	return &frame.Frame{
		FrameIndex:        index,
		SampleRate:        4096,
		BitDepth:          16,
		MainChannels:      1,
		SamplesPerChannel: 4,
		Main:              [][]uint16{{1, 2, 3, 4}},
		CreatedAt:         time.Now().UTC(),
	}
}

func TestPlaneEpochBumpsOnConfigChange(t *testing.T) {
	tp := newTestPlane(t)
	first := tp.plane.Epoch()

	seedProject(t, tp)
	assert.Greater(t, tp.plane.Epoch(), first)

	snapshot := tp.router.Snapshot()
	binding, ok := snapshot.Resolve("daq.pump-1")
	require.True(t, ok)
	assert.Equal(t, "plant", binding.Project)
	assert.Equal(t, "pump-1", binding.Model)
	assert.Equal(t, 4, binding.MainChannels)
	assert.Zero(t, binding.RecordingID)
}

func TestStartRecordingPublishesBinding(t *testing.T) {
	tp := newTestPlane(t)
	seedProject(t, tp)

	rec, err := tp.plane.StartRecording(context.Background(), "acme", "plant", "pump-1")
	require.NoError(t, err)
	assert.Equal(t, "data1", rec.Filename)

	binding, ok := tp.router.Snapshot().Resolve("daq.pump-1")
	require.True(t, ok)
	assert.Equal(t, rec.ID, binding.RecordingID)

	// A second session on the same model conflicts.
	_, err = tp.plane.StartRecording(context.Background(), "acme", "plant", "pump-1")
	assert.Error(t, err)
}

func TestStopRecordingIsSynchronous(t *testing.T) {
	tp := newTestPlane(t)
	seedProject(t, tp)

	rec, err := tp.plane.StartRecording(context.Background(), "acme", "plant", "pump-1")
	require.NoError(t, err)

	for i := uint32(0); i < 20; i++ {
		require.NoError(t, tp.writer.Submit(rec.ID, testStoredFrame(i), time.Now()))
	}
	require.NoError(t, tp.plane.StopRecording(context.Background(), rec.ID))

	// Every queued append landed before StopRecording returned.
	frames, err := tp.recs.Query(rec.ID, recording.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, frames, 20)

	binding, ok := tp.router.Snapshot().Resolve("daq.pump-1")
	require.True(t, ok)
	assert.Zero(t, binding.RecordingID)

	// Appends after close are rejected by the store.
	err = tp.recs.Append(rec.ID, testStoredFrame(99), time.Now())
	assert.Error(t, err)
}

func TestStopRecordingTwice(t *testing.T) {
	tp := newTestPlane(t)
	seedProject(t, tp)

	rec, err := tp.plane.StartRecording(context.Background(), "acme", "plant", "pump-1")
	require.NoError(t, err)
	require.NoError(t, tp.plane.StopRecording(context.Background(), rec.ID))
	assert.NoError(t, tp.plane.StopRecording(context.Background(), rec.ID))
}

func TestSubscribeBuildsProcessorFromModel(t *testing.T) {
	tp := newTestPlane(t)
	seedProject(t, tp)

	id, err := tp.plane.Subscribe(context.Background(), feature.Trend, "acme", "plant", "pump-1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.True(t, tp.subs.HasSinks(feature.Trend, "pump-1"))

	require.NoError(t, tp.plane.Unsubscribe(id))
	assert.NoError(t, tp.plane.Unsubscribe(id))
	assert.False(t, tp.subs.HasSinks(feature.Trend, "pump-1"))
}

func TestSubscribeUnknownModel(t *testing.T) {
	tp := newTestPlane(t)
	seedProject(t, tp)

	_, err := tp.plane.Subscribe(context.Background(), feature.Trend, "acme", "plant", "no-such", 0)
	assert.Error(t, err)
}

func TestDeleteTagClosesOpenRecording(t *testing.T) {
	tp := newTestPlane(t)
	seedProject(t, tp)

	rec, err := tp.plane.StartRecording(context.Background(), "acme", "plant", "pump-1")
	require.NoError(t, err)
	require.NoError(t, tp.plane.DeleteTag(context.Background(), "acme", "plant", "pump-1"))

	got, err := tp.recs.Get(rec.ID)
	require.NoError(t, err)
	assert.False(t, got.Open())

	_, ok := tp.router.Snapshot().Resolve("daq.pump-1")
	assert.False(t, ok)
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	tp := newTestPlane(t)
	seedProject(t, tp)

	good := configstore.DefaultFFTSettings()
	good.NumberOfLines = 200
	require.NoError(t, tp.plane.UpdateFFTSettings("acme", "plant", good))

	bad := configstore.DefaultFFTSettings()
	bad.StartHz = 100
	bad.StopHz = 50
	assert.Error(t, tp.plane.UpdateFFTSettings("acme", "plant", bad))

	current, err := tp.plane.GetFFTSettings("acme", "plant")
	require.NoError(t, err)
	assert.Equal(t, 200, current.NumberOfLines)
}

func TestGetFramesCursor(t *testing.T) {
	tp := newTestPlane(t)
	seedProject(t, tp)

	rec, err := tp.plane.StartRecording(context.Background(), "acme", "plant", "pump-1")
	require.NoError(t, err)
	for i := uint32(0); i < 10; i++ {
		require.NoError(t, tp.recs.Append(rec.ID, testStoredFrame(i), time.Now()))
	}
	require.NoError(t, tp.plane.StopRecording(context.Background(), rec.ID))

	cursor, err := tp.plane.GetFrames(FrameQuery{
		Project: "plant", Model: "pump-1", BatchSize: 4,
	})
	require.NoError(t, err)

	var indices []uint32
	for {
		page, err := cursor.Next()
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(t, len(page), 4)
		for _, f := range page {
			indices = append(indices, f.FrameIndex)
		}
	}
	require.Len(t, indices, 10)
	for i, idx := range indices {
		assert.Equal(t, uint32(i), idx)
	}
}

func TestGetFramesRangeAndDefaults(t *testing.T) {
	tp := newTestPlane(t)
	seedProject(t, tp)

	rec, err := tp.plane.StartRecording(context.Background(), "acme", "plant", "pump-1")
	require.NoError(t, err)
	for i := uint32(0); i < 6; i++ {
		require.NoError(t, tp.recs.Append(rec.ID, testStoredFrame(i), time.Now()))
	}
	require.NoError(t, tp.plane.StopRecording(context.Background(), rec.ID))

	start, stop := uint32(2), uint32(4)
	cursor, err := tp.plane.GetFrames(FrameQuery{
		Project: "plant", Model: "pump-1",
		FrameStart: &start, FrameStop: &stop,
	})
	require.NoError(t, err)

	page, err := cursor.Next()
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, uint32(2), page[0].FrameIndex)
	assert.Equal(t, uint32(4), page[2].FrameIndex)

	_, err = tp.plane.GetFrames(FrameQuery{Project: "plant", Model: "ghost"})
	assert.Error(t, err)
}
