package platform

import (
	"github.com/nerrad567/gray-logic-platform/internal/binding"
	"github.com/nerrad567/gray-logic-platform/internal/tree"
	"github.com/nerrad567/gray-logic-platform/internal/value"
)

// Values of Vebus/AllowMk3Fw212Update.
const (
	Mk3UpdateDisallowed    int64 = 0
	Mk3UpdateAllowed       int64 = 1
	Mk3UpdateNotApplicable int64 = 2
)

// Setting paths, relative to the Settings root of the settings service.
const (
	SettingDemoMode       = "Gui/DemoMode"
	SettingGuiLanguage    = "Gui/Language"
	SettingRunningVersion = "Gui/RunningVersion"
	SettingRelayFunction  = "Relay/Function"
	SettingRelay1Function = "Relay/1/Function"
	SettingAccessPoint    = "Services/AccessPoint"
	SettingBleSensors     = "Services/BleSensors"
	SettingBluetooth      = "Services/Bluetooth"
	SettingConsole        = "Services/Console"
	SettingEvcc           = "Services/Evcc"
	SettingModbus         = "Services/Modbus"
	SettingNodeRed        = "Services/NodeRed"
	SettingSignalK        = "Services/SignalK"
	SettingSocketcand     = "Services/Socketcand"
	SettingTailscale      = "Services/Tailscale/Enabled"
	SettingMk3Update      = "Vebus/AllowMk3Fw212Update"
)

// Setting is one persisted setting owned by the platform. A Min >= Max
// leaves the value unbounded.
type Setting struct {
	Path    string      `json:"path"`
	Default value.Value `json:"default"`
	Min     int64       `json:"min"`
	Max     int64       `json:"max"`
}

// Domain returns the accepted range of the setting.
func (s Setting) Domain() binding.Domain {
	return binding.Domain{Min: s.Min, Max: s.Max}
}

// SettingsTable is the ordered list of settings registered at startup.
type SettingsTable []Setting

// DefaultSettings returns the settings the platform registers. mk3Default
// is the default of the MK3 update switch; the access point setting only
// exists when the hostapd template is installed.
func DefaultSettings(mk3Default int64, accessPoint bool) SettingsTable {
	table := SettingsTable{
		{Path: SettingDemoMode, Default: value.OfInt(0), Min: 0, Max: 3},
		{Path: SettingGuiLanguage, Default: value.OfString("en")},
		{Path: SettingRunningVersion, Default: value.OfInt(1), Min: 1, Max: 2},
		{Path: SettingRelayFunction, Default: value.OfInt(0)},
		{Path: SettingRelay1Function, Default: value.OfInt(2)},
	}
	if accessPoint {
		table = append(table, Setting{Path: SettingAccessPoint, Default: value.OfInt(1), Min: 0, Max: 1})
	}
	return append(table,
		Setting{Path: SettingBleSensors, Default: value.OfInt(0), Min: 0, Max: 1},
		Setting{Path: SettingBluetooth, Default: value.OfInt(1), Min: 0, Max: 1},
		Setting{Path: SettingEvcc, Default: value.OfInt(1), Min: 0, Max: 1},
		Setting{Path: SettingModbus, Default: value.OfInt(0), Min: 0, Max: 1},
		Setting{Path: SettingNodeRed, Default: value.OfInt(0), Min: 0, Max: 2},
		Setting{Path: SettingSignalK, Default: value.OfInt(0), Min: 0, Max: 1},
		Setting{Path: SettingSocketcand, Default: value.OfInt(0), Min: 0, Max: 1},
		Setting{Path: SettingTailscale, Default: value.OfInt(0), Min: 0, Max: 1},
		Setting{Path: SettingMk3Update, Default: value.OfInt(mk3Default), Min: 0, Max: 2},
	)
}

// Lookup returns the setting registered at path.
func (t SettingsTable) Lookup(path string) (Setting, bool) {
	for _, s := range t {
		if s.Path == path {
			return s, true
		}
	}
	return Setting{}, false
}

// Domain returns the domain of the setting at path; unknown settings are
// unbounded.
func (t SettingsTable) Domain(path string) binding.Domain {
	s, _ := t.Lookup(path)
	return s.Domain()
}

// settingPath returns the tree path of a setting of the settings service.
func settingPath(service, setting string) string {
	return tree.Path(service, "Settings/"+setting)
}
