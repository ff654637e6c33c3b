// Package mqtt owns the broker connection for Edge Core.
//
// A single Client carries all traffic between the backend and the edge
// fleet: heartbeat and reply subscriptions inbound, command publishes
// outbound. The client tracks its subscription set and replays it after
// every reconnect, publishes retained online/offline announcements on
// edgecore/system/status, and registers a Last Will so the broker reports
// an unclean exit on our behalf.
//
// Each edge device owns three topics derived from its identifier:
//
//	{edge_id}/status   device to backend: heartbeats
//	{edge_id}/data     device to backend: command replies and telemetry
//	{edge_id}/cmd      backend to device: commands
//
// Higher layers (the fleet tracker and command correlator in internal/edge)
// consume this client through a narrow Broker interface, which keeps them
// testable against an in-memory fake. Connection behaviour against a live
// broker is covered by tests behind the integration build tag.
//
// TLS and credential auth are driven by config; anonymous plaintext is for
// local development only.
package mqtt
