package transport

import "time"

// Mode is how job events are currently being delivered.
type Mode string

const (
	ModeConnecting Mode = "connecting"
	ModePush       Mode = "push"
	ModePolling    Mode = "polling"
	ModeStopped    Mode = "stopped"
)

// State is the connection badge.
type State struct {
	Mode     Mode `json:"mode"`
	Degraded bool `json:"degraded"`
	// ConsecutiveFailures counts failed polls or unparseable frames since the
	// last success.
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastSync            time.Time `json:"last_sync,omitzero"`
	Since               time.Time `json:"since"`
	PushConfigured      bool      `json:"push_configured"`
	Breaker             string    `json:"breaker"`
}
