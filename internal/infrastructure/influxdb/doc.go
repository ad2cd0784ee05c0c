// Package influxdb writes platformd transitions to InfluxDB v2.
//
// Each supervisor command, gate edge and binding decision becomes one
// point, which makes a flapping service visible on the same dashboards
// as the rest of the device's data. Writes are batched and never block
// the event loop. Failed batches surface through SetOnError.
package influxdb
