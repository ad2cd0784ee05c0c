package platform

import "errors"

// Fatal conditions reported through Application.Fatal. The daemon exits
// with a failure status on either.
var (
	// ErrSettingsUnavailable means the settings service did not become
	// synchronized within the configured timeout.
	ErrSettingsUnavailable = errors.New("platform: settings service not available")

	// ErrSettingsLost means the settings service went away after startup.
	ErrSettingsLost = errors.New("platform: settings service lost")

	// ErrUnknownPath is returned for writes to a path the platform does not accept.
	ErrUnknownPath = errors.New("platform: path not writable")
)
