// Package binding ties configuration values to the lifecycle of one
// supervised process.
//
// A Binding watches one or more tree paths, turns each delivery into a
// Decision (enabled, mode, version) and acts only when the Decision
// differs from the last one it applied. Invalid values never produce a
// decision, so a value that is briefly unavailable cannot stop a running
// process. Values of an unsupported shape evaluate to false.
//
// Four kinds are supported:
//
//	KindEnable      one input, truthy within its [min,max] domain
//	KindAnyOf       several inputs, enabled if any of them is
//	KindModeSelect  one input mapped through an allow-list to a mode
//	KindVersionEdge one input; a change between two valid values restarts
//
// Under the Restart policy the binding issues start, stop and restart
// commands to its Service. Under SideEffectOnly it calls its Effect once
// per decision change instead and never touches a process.
//
// Bindings are owned by the event loop and are not safe for concurrent use.
package binding
