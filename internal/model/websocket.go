package model

// WebSocket message types
const (
	WSMessageTypeJobUpdate      = "job_update"
	WSMessageTypePropertyUpdate = "property_update"
	WSMessageTypePing           = "ping"
	WSMessageTypePong           = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSJobMessage carries a job delta
type WSJobMessage struct {
	Type string `json:"type"`
	JobDelta
}

// WSPropertyMessage carries a property delta
type WSPropertyMessage struct {
	Type string `json:"type"`
	PropertyDelta
}
