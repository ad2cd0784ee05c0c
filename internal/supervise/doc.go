// Package supervise issues start, stop and restart commands to supervised
// services.
//
// A Backend talks to the actual supervisor. Two are provided:
//
//   - Daemontools writes control characters to <service>/supervise/control
//     and reads <service>/supervise/status, the way svc(8) does.
//   - ExecBackend runs the configured binaries itself through
//     process.Manager, with a single worker goroutine so commands for a
//     service are applied in order.
//
// Service wraps one backend service and remembers the last commanded
// state, so repeated Start or Stop calls are no-ops. Restart is always
// issued, as one backend command. Commands never block the caller.
//
// Registry hands out Service values by name and lets observers (the
// command journal, metrics, the event stream) see every command.
package supervise
