package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when metrics are switched off.
	ErrDisabled         = errors.New("influxdb: disabled")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrNotConnected     = errors.New("influxdb: not connected")
)
