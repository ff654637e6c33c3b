// Package edge implements fleet liveness tracking and command correlation
// for edge devices connected over MQTT.
//
// The package is organised around four cooperating components:
//
//   - SubscriptionRegistry: reference-counted topic subscriptions, so the
//     tracker, pinger, and correlator can share a device's topics without
//     racing each other's unsubscribes.
//   - Tracker: per-device heartbeat watchdog and keep-alive pinger.
//   - Correlator: matches inbound data-topic messages to outstanding
//     command trace ids under a deadline.
//   - Dispatcher: builds and publishes command envelopes, wiring the
//     correlation wait before the publish so a fast reply cannot be missed.
//
// All components are constructed explicitly and injected with a Broker,
// which internal/infrastructure/mqtt.Client satisfies. Tests substitute a
// fake broker.
package edge
