// Package binding persists user-to-edge-device bindings.
//
// A binding authorizes a user to register, query, and command an edge
// device. The command and liveness paths only ever ask "is this user bound
// to this device"; management of the bindings themselves is a thin CRUD
// surface over one table.
package binding
