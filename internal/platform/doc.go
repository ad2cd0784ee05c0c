// Package platform wires the appliance's supervised services to its
// persisted settings and discovered devices.
//
// The Application waits for the settings service to be synchronized,
// registers the settings it owns, then builds:
//   - the generator-starter and parallel-bms condition gates fed by the
//     discovery dispatcher
//   - one service binding per optional service (modbus, node-red, hostapd...)
//   - side-effect bindings for evcc, tailscale, demo mode and the MK3
//     firmware update switch
//   - the debounced reboot action and the mirrored settings exposed below
//     the platform namespace
//
// All Application methods except Fatal run on the event loop goroutine.
// Outer surfaces reach it through event.Loop.Invoke or by posting
// event.Call.
package platform
