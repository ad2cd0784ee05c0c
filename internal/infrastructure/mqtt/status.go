package mqtt

import (
	"encoding/json"
	"time"
)

// Presence values published on Topics.SystemStatus.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
	// PresenceLost is the will payload the broker publishes when the
	// daemon drops off without a clean disconnect.
	PresenceLost = "lost"
)

// Presence is the retained daemon status document.
type Presence struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Since    string `json:"since"`
}

func presencePayload(status, clientID string, at time.Time) []byte {
	b, _ := json.Marshal(Presence{ //nolint:errcheck // plain strings always marshal
		Status:   status,
		ClientID: clientID,
		Since:    at.UTC().Format(time.RFC3339),
	})
	return b
}
