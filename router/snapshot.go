package router

// Binding resolves a bus tag to its project and model, with the state
// the router needs per frame.
type Binding struct {
	Project string
	Model   string

	// MainChannels drives the JSON decode path, which carries no
	// channel count of its own.
	MainChannels int

	// RecordingID is the open recording accepting this model's
	// frames; zero when not recording.
	RecordingID uint
}

// Snapshot is an immutable view of the tag table at one configuration
// epoch. The control plane builds a fresh snapshot on every change and
// swaps it in atomically; in-flight frames finish under the snapshot
// they started with.
type Snapshot struct {
	Epoch    uint64
	bindings map[string]Binding
}

// NewSnapshot builds a snapshot from a tag → binding table.
func NewSnapshot(epoch uint64, bindings map[string]Binding) *Snapshot {
	copied := make(map[string]Binding, len(bindings))
	for tag, b := range bindings {
		copied[tag] = b
	}
	return &Snapshot{Epoch: epoch, bindings: copied}
}

// Resolve looks up the binding for a tag.
func (s *Snapshot) Resolve(tag string) (Binding, bool) {
	b, ok := s.bindings[tag]
	return b, ok
}

// Tags returns the snapshot's tag set.
func (s *Snapshot) Tags() []string {
	out := make([]string, 0, len(s.bindings))
	for tag := range s.bindings {
		out = append(out, tag)
	}
	return out
}
