// Package api implements the local HTTP status API and event stream of
// the platform daemon.
//
// This package provides:
//   - REST endpoints for the platform status, supervised services,
//     published values and the command journal
//   - A WebSocket hub broadcasting supervisor commands, gate edges and
//     binding decisions as they happen
//   - A small middleware chain built on chi/middleware
//
// # Architecture
//
// The application state is owned by the event loop. Handlers never read
// it directly: the status endpoint marshals a snapshot through
// event.Loop.Invoke so a request observes a consistent view between two
// events. Supervisor state is queried from the backend per request.
//
// The API is read-only. Writes to platform paths arrive over MQTT.
package api
