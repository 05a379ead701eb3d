// Package gateway groups the outward-facing surfaces of the pipeline.
//
// The bus is the system's internal fabric; gateways bridge it to
// external clients. gateway/ws serves derived analytics products over
// WebSocket: clients subscribe to (feature, model, channel) streams
// and the gateway holds one bus subscription per distinct subject,
// fanning messages out to every attached client.
package gateway
