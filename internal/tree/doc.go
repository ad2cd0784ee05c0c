// Package tree mirrors the remote-object tree the daemon supervises.
//
// The tree holds the lifecycle state of every remote object (service) and
// the last value of every property path, and hands out watches on those
// paths. It is owned by the event loop: Attach registers handlers for
// ValueChanged, Appeared, StateChanged and Removed, and nothing else may
// mutate it.
//
// Paths have the form "<object id>/<property path>", for example
// "com.victronenergy.settings/Settings/Services/Modbus" or
// "com.victronenergy.battery.ttyO2/ProductId". Use Path to build them.
//
// Transport feeds the loop from MQTT:
//
//	{prefix}/service/{id}/state            {"state":"synchronized"}
//	{prefix}/service/{id}/value/{property} {"value":X}
//
// An empty (retained-clear) payload on a state topic removes the object.
package tree
