package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of the platform topic namespace.
const DefaultTopicPrefix = "venus"

// Topics provides builders for the platform MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.NewTopics("venus")
//	topics.ServiceState("com.victronenergy.genset.socketcan_can0")
//	// Returns: "venus/service/com.victronenergy.genset.socketcan_can0/state"
type Topics struct {
	Prefix string
}

// NewTopics returns topic builders rooted at prefix (DefaultTopicPrefix if empty).
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// ServiceTopicKind distinguishes the topics below a service.
type ServiceTopicKind int

const (
	ServiceState ServiceTopicKind = iota + 1
	ServiceValue
)

// =============================================================================
// Remote-object Topics
// =============================================================================

// ServiceState returns the lifecycle topic of a remote object.
//
// Example: venus/service/com.victronenergy.battery.ttyO2/state
func (t Topics) ServiceState(id string) string {
	return fmt.Sprintf("%s/service/%s/state", t.root(), id)
}

// ServiceValue returns the topic of one property of a remote object.
//
// Example: venus/service/com.victronenergy.settings/value/Settings/Services/Modbus
func (t Topics) ServiceValue(id, property string) string {
	return fmt.Sprintf("%s/service/%s/value/%s", t.root(), id, strings.TrimPrefix(property, "/"))
}

// ServiceWrite returns the topic used to request a change of a remote
// object property. The object owner answers by publishing ServiceValue.
//
// Example: venus/write/service/com.victronenergy.settings/Settings/Services/NodeRed
func (t Topics) ServiceWrite(id, property string) string {
	return fmt.Sprintf("%s/write/service/%s/%s", t.root(), id, strings.TrimPrefix(property, "/"))
}

// ParseService splits a topic below {prefix}/service into its parts.
// ok is false for topics outside that namespace.
func (t Topics) ParseService(topic string) (id string, kind ServiceTopicKind, property string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/service/")
	if !found {
		return "", 0, "", false
	}

	id, rest, found = strings.Cut(rest, "/")
	if !found || id == "" {
		return "", 0, "", false
	}

	if rest == "state" {
		return id, ServiceState, "", true
	}
	property, found = strings.CutPrefix(rest, "value/")
	if !found || property == "" {
		return "", 0, "", false
	}
	return id, ServiceValue, property, true
}

// =============================================================================
// Platform Topics
// =============================================================================

// PlatformValue returns the retained topic for a value the daemon publishes.
//
// Example: venus/platform/Device/UniqueId
func (t Topics) PlatformValue(path string) string {
	return fmt.Sprintf("%s/platform/%s", t.root(), strings.TrimPrefix(path, "/"))
}

// PlatformWrite returns the topic clients write to for a platform path.
//
// Example: venus/write/platform/Device/Reboot
func (t Topics) PlatformWrite(path string) string {
	return fmt.Sprintf("%s/write/platform/%s", t.root(), strings.TrimPrefix(path, "/"))
}

// SettingsRegister returns the request topic used to register setting
// definitions (default, min, max) with the settings service.
//
// Example: venus/request/settings/register
func (t Topics) SettingsRegister() string {
	return fmt.Sprintf("%s/request/settings/register", t.root())
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the daemon status topic (online/offline, LWT).
//
// Example: venus/system/platformd/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/platformd/status", t.root())
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllServices returns a pattern matching every remote-object topic.
//
// Pattern: venus/service/#
func (t Topics) AllServices() string {
	return fmt.Sprintf("%s/service/#", t.root())
}

// AllPlatformWrites returns a pattern matching every platform write request.
//
// Pattern: venus/write/platform/#
func (t Topics) AllPlatformWrites() string {
	return fmt.Sprintf("%s/write/platform/#", t.root())
}

// ParsePlatformWrite extracts the path from a platform write topic.
func (t Topics) ParsePlatformWrite(topic string) (string, bool) {
	path, ok := strings.CutPrefix(topic, t.root()+"/write/platform/")
	if !ok || path == "" {
		return "", false
	}
	return path, true
}
