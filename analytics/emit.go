package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/feature"
)

// Result is the envelope every processor emits. Data holds the
// feature-specific payload.
type Result struct {
	Feature    string    `json:"feature"`
	Model      string    `json:"model"`
	Channel    int       `json:"channel"` // -1 for all-channel features
	FrameIndex uint32    `json:"frame_index"`
	Timestamp  time.Time `json:"timestamp"`
	Data       any       `json:"data"`
}

// Emitter receives processor results. Implementations must be safe for
// concurrent use; every sink goroutine emits through the same instance.
type Emitter interface {
	Emit(ctx context.Context, r Result) error
}

// Publisher is the bus surface the NATS emitter needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSEmitter publishes results as JSON on derived.<feature>.<model>.<channel>.
type NATSEmitter struct {
	bus Publisher
}

// NewNATSEmitter returns an emitter backed by the given bus connection.
func NewNATSEmitter(bus Publisher) *NATSEmitter {
	return &NATSEmitter{bus: bus}
}

// Emit publishes one result.
func (e *NATSEmitter) Emit(ctx context.Context, r Result) error {
	feat, err := feature.Parse(r.Feature)
	if err != nil {
		return errors.WrapInvalid(err, "NATSEmitter", "Emit", "parsing feature name")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return errors.WrapInvalid(err, "NATSEmitter", "Emit", "marshaling result")
	}
	subject := feature.DerivedSubject(feat, r.Model, r.Channel)
	if err := e.bus.Publish(ctx, subject, payload); err != nil {
		return errors.WrapTransient(err, "NATSEmitter", "Emit", "publishing result")
	}
	return nil
}

// CollectEmitter buffers results in memory. Test helper and the
// backing store for the websocket gateway's local fan-out.
type CollectEmitter struct {
	mu      sync.Mutex
	results []Result
}

// Emit records the result.
func (e *CollectEmitter) Emit(_ context.Context, r Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, r)
	return nil
}

// Results returns a copy of everything emitted so far.
func (e *CollectEmitter) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Result, len(e.results))
	copy(out, e.results)
	return out
}
