// Package vibstreams is a real-time condition-monitoring pipeline for
// rotating machinery. It ingests binary DAQ frames from a NATS bus,
// persists them as recordings, and computes vibration features that
// stream to live subscribers.
//
// # Architecture
//
// Frames flow through a fixed pipeline; configuration flows around it
// through the control plane:
//
//	┌──────────┐   tag subjects   ┌──────────┐
//	│ NATS bus │ ───────────────→ │ ingress  │  bounded arrival queue
//	└──────────┘                  └────┬─────┘
//	                                   ↓
//	                              ┌──────────┐
//	                              │  router  │  tag → model resolution
//	                              └──┬────┬──┘  under a config snapshot
//	                    persist      │    │      deliver
//	               ┌─────────────────┘    └──────────────┐
//	               ↓                                     ↓
//	        ┌─────────────┐                      ┌──────────────┐
//	        │  recording  │                      │ subscription │
//	        │ (gorm/sqlite)│                     │   manager    │
//	        └─────────────┘                      └──────┬───────┘
//	                                                    ↓
//	                                             ┌─────────────┐
//	                                             │  analytics  │
//	                                             │ processors  │
//	                                             └──────┬──────┘
//	                                       derived.<feature>.<model>.<ch>
//	                                                    ↓
//	                                        NATS bus → gateway/ws clients
//
// The control plane (control) owns all configuration mutation: project
// and tag CRUD, recording start/stop, analytics settings, and
// subscriptions. Every change bumps an epoch and swaps an immutable
// snapshot into the router, so frame routing never takes a lock.
//
// # Packages
//
// Pipeline:
//   - frame: binary DAQ frame codec and tacho trigger extraction
//   - ingress: NATS arrival adapter with bounded buffering
//   - router: snapshot-based tag resolution and fan-out
//   - recording: recording store and async frame writer
//   - subscription: per-sink queues and pinned processor goroutines
//   - analytics: calibration, FFT, harmonics, and feature processors
//
// Control and surfaces:
//   - configstore: projects, models, channels, settings (gorm/sqlite)
//   - control: single-writer control plane and epoch management
//   - gateway/ws: WebSocket fan-out of derived products
//   - service, cmd/vibstreams: wiring, lifecycle, entry point
//
// Infrastructure:
//   - natsclient: NATS connection management with reconnect policy
//   - metric: Prometheus metrics registry and HTTP endpoint
//   - errors: classified error handling
//   - pkg/buffer, pkg/worker, pkg/retry: bounded queues, pools, retries
package vibstreams
