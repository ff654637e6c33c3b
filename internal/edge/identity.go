package edge

import (
	"fmt"
	"regexp"
)

// edgeIDPattern is the fleet naming scheme: fixed "RED-" prefix followed by
// eight uppercase hex digits. Case-sensitive; lowercase hex is rejected.
var edgeIDPattern = regexp.MustCompile(`^RED-[0-9A-F]{8}$`)

// ValidateEdgeID checks an edge identifier against the fleet naming scheme.
//
// Returns ErrInvalidEdgeID (wrapped with the offending value) on mismatch.
func ValidateEdgeID(edgeID string) error {
	if !edgeIDPattern.MatchString(edgeID) {
		return fmt.Errorf("%w: %q", ErrInvalidEdgeID, edgeID)
	}
	return nil
}

// StatusTopic returns the topic an edge publishes heartbeats on.
func StatusTopic(edgeID string) string {
	return edgeID + "/status"
}

// DataTopic returns the topic an edge publishes command replies and
// telemetry on.
func DataTopic(edgeID string) string {
	return edgeID + "/data"
}

// CommandTopic returns the topic the backend publishes commands to.
func CommandTopic(edgeID string) string {
	return edgeID + "/cmd"
}
