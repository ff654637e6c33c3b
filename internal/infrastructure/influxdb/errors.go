package influxdb

import "errors"

// Sentinel errors, matched with errors.Is.
var (
	// ErrDisabled means telemetry is switched off in configuration;
	// Connect refuses rather than returning a half-working client.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps the initial ping failure from Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")
)
