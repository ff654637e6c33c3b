// Package cache provides the short-TTL key/value layer backing Edge Core's
// liveness view and command result delivery.
//
// Three namespaces live here:
//
//	cmd:req:{trace_id}        the dispatched command (edge id, code, payload)
//	cmd:res:{trace_id}        the correlated reply, or the literal "notfound"
//	edge:heartbeat:{edge_id}  the latest heartbeat with its received-at time
//
// The cache is a best-effort hand-off, not the source of truth for in-flight
// correlation: a failed write is logged by callers and the command path
// continues. TTLs keep the store self-cleaning: an "online" reading can
// never outlive its heartbeat TTL even if the process that wrote it crashed.
//
// # Usage
//
//	store := cache.NewMemoryStore()
//	defer store.Close()
//
//	commands := cache.NewCommandCache(store, cfg.GetCommandCacheTTL())
//	heartbeats := cache.NewHeartbeatCache(store, cfg.GetHeartbeatTTL())
package cache
