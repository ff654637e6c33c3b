package edge

import "errors"

// Sentinel errors for fleet operations.
var (
	// ErrInvalidEdgeID indicates an edge identifier that does not match the
	// fleet naming scheme. Rejected before any broker interaction.
	ErrInvalidEdgeID = errors.New("invalid edge id")

	// ErrBrokerUnavailable indicates the MQTT connection is down or a
	// publish/subscribe against it failed.
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrDuplicateTrace indicates a correlation wait already exists for the
	// trace id. Trace ids are random UUIDs, so this points at a caller bug.
	ErrDuplicateTrace = errors.New("trace id already pending")
)
