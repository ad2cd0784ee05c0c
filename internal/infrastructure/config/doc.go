// Package config loads the platformd YAML configuration.
//
// Default holds the values for a stock Venus device, so a config file
// only lists what differs. Per-device settings and secrets (broker
// credentials, the InfluxDB token) can come from PLATFORMD_* variables
// instead of the file. Validate collects every problem into one error so
// check-config reports them together.
package config
