// Package event provides the single-threaded event loop that owns all
// supervisor state.
//
// Transport goroutines (MQTT callbacks, timers, netlink monitors) never
// touch gates, bindings or the object tree directly. They Post typed
// events; the loop delivers them to registered handlers one at a time in
// FIFO order. Tests use Drain to process the queue synchronously.
package event
