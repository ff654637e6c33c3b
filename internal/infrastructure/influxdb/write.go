package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteHeartbeat records a heartbeat arrival for an edge device.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Called on every inbound status-topic message, so this must stay cheap.
func (c *Client) WriteHeartbeat(edgeID string, receivedAt time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"edge_heartbeat",
		map[string]string{
			"edge_id": edgeID,
		},
		map[string]interface{}{
			"alive": true,
		},
		receivedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteWatchdogTimeout records a watchdog expiry for an edge device.
// These are the events fleet operators alert on.
func (c *Client) WriteWatchdogTimeout(edgeID string, firedAt time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"edge_watchdog_timeout",
		map[string]string{
			"edge_id": edgeID,
		},
		map[string]interface{}{
			"timed_out": true,
		},
		firedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommandResult records the outcome of a dispatched command.
//
// Parameters:
//   - edgeID: Device the command was sent to
//   - code: Command code from the envelope
//   - resolved: true when a reply arrived, false for a timeout
//   - elapsed: Time from dispatch to resolution
func (c *Client) WriteCommandResult(edgeID, code string, resolved bool, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"edge_command",
		map[string]string{
			"edge_id": edgeID,
			"code":    code,
		},
		map[string]interface{}{
			"resolved":   resolved,
			"elapsed_ms": elapsed.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
