// Package control is the single-writer control plane: project and tag
// configuration, recording sessions, settings, and subscriptions. All
// mutations funnel through one Plane so the router's tag snapshot and
// the stores never disagree.
package control

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/vibstreams/analytics"
	"github.com/c360/vibstreams/configstore"
	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/ingress"
	"github.com/c360/vibstreams/natsclient"
	"github.com/c360/vibstreams/recording"
	"github.com/c360/vibstreams/router"
	"github.com/c360/vibstreams/subscription"
)

// openRecordingsBucket mirrors open recording sessions so a restarted
// node can close them out.
const openRecordingsBucket = "open-recordings"

// DefaultStopTimeout bounds the synchronous flush in StopRecording.
const DefaultStopTimeout = 10 * time.Second

// Deps wires the plane to everything it coordinates. Bus is optional;
// without it the KV mirror is skipped.
type Deps struct {
	Config     *configstore.Store
	Recordings *recording.Store
	Writer     *recording.Writer
	Subs       *subscription.Manager
	Engine     *analytics.Engine
	Router     *router.Router
	Adapter    *ingress.Adapter   // optional in tests
	Bus        *natsclient.Client // optional
	Logger     *slog.Logger

	// StopTimeout bounds StopRecording's flush; DefaultStopTimeout
	// when zero.
	StopTimeout time.Duration
}

// Plane coordinates configuration changes. Single writer: every
// mutating call takes the plane lock, applies the store change, bumps
// the epoch, and publishes a fresh router snapshot.
type Plane struct {
	deps  Deps
	mu    sync.Mutex
	epoch uint64
	kv    *natsclient.KVStore
}

// NewPlane validates deps.
func NewPlane(deps Deps) (*Plane, error) {
	if deps.Config == nil || deps.Recordings == nil || deps.Writer == nil ||
		deps.Subs == nil || deps.Engine == nil || deps.Router == nil {
		return nil, errors.WrapFatal(errors.ErrNoConnection,
			"ControlPlane", "NewPlane", "missing required dependency")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "control-plane")
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = DefaultStopTimeout
	}
	return &Plane{deps: deps}, nil
}

// Start publishes the initial snapshot and, when a bus is connected,
// opens the KV mirror and reconciles it with the store.
func (p *Plane) Start(ctx context.Context) error {
	if p.deps.Bus != nil {
		bucket, err := p.deps.Bus.KeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      openRecordingsBucket,
			Description: "open recording sessions by project.model",
		})
		if err != nil {
			p.deps.Logger.Warn("open-recordings mirror unavailable", "error", err)
		} else {
			p.kv = p.deps.Bus.NewKVStore(bucket)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.rebuildLocked(ctx); err != nil {
		return err
	}
	p.mirrorOpenRecordings(ctx)
	return nil
}

// Epoch returns the current configuration epoch.
func (p *Plane) Epoch() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch
}

// rebuildLocked bumps the epoch and swaps in a snapshot built from the
// config and recording stores. Callers hold p.mu.
func (p *Plane) rebuildLocked(ctx context.Context) error {
	projects, err := p.deps.Config.AllProjects()
	if err != nil {
		return errors.Wrap(err, "ControlPlane", "rebuild", "loading projects")
	}

	bindings := make(map[string]router.Binding)
	for _, proj := range projects {
		for _, m := range proj.Models {
			b := router.Binding{
				Project:      proj.Name,
				Model:        m.Name,
				MainChannels: len(m.Channels),
			}
			if rec, err := p.deps.Recordings.FindOpen(proj.Name, m.Name); err == nil {
				b.RecordingID = rec.ID
			}
			bindings[m.Tag] = b
		}
	}

	p.epoch++
	snapshot := router.NewSnapshot(p.epoch, bindings)
	p.deps.Router.UpdateSnapshot(snapshot)

	if p.deps.Adapter != nil {
		if err := p.deps.Adapter.SetTags(ctx, snapshot.Tags()); err != nil {
			p.deps.Logger.Warn("tag resubscribe incomplete", "error", err)
		}
	}
	p.deps.Logger.Info("configuration epoch published",
		"epoch", p.epoch, "tags", len(bindings))
	return nil
}

// Rebuild republishes the snapshot without any store change. Used
// after external events such as a bus reconnect.
func (p *Plane) Rebuild(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rebuildLocked(ctx)
}
