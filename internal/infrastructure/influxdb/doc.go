// Package influxdb provides InfluxDB connectivity for Edge Core.
//
// It wraps the official influxdb-client-go v2 library with Edge Core-specific
// patterns for connection management, telemetry writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series storage for fleet liveness data:
//   - Heartbeat arrivals per edge device
//   - Watchdog timeout events
//   - Command dispatch outcomes
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "redsafetw",
//	    Bucket: "fleet",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteHeartbeat("RED-1A2B3C4D", time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This keeps a chatty fleet from turning every heartbeat into a network round trip.
package influxdb
