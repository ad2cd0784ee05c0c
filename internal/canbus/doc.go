// Package canbus discovers the appliance's CAN network interfaces and
// publishes them as the platform value CanBus/Interfaces.
//
// Interfaces are enumerated from sysfs (ARPHRD_CAN links) at startup and
// again whenever udev reports a network device being added or removed.
package canbus
