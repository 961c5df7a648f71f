package client

import "time"

// Status mirrors GET /status.
type Status struct {
	State      string         `json:"state"`
	Reading    float64        `json:"reading"`
	Threshold  float64        `json:"threshold"`
	IncidentID string         `json:"incident_id,omitempty"`
	Prompt     string         `json:"prompt,omitempty"`
	Records    map[string]int `json:"records,omitempty"`
}

// Event mirrors one ledger entry from GET /events.
type Event struct {
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	OccurredAt  time.Time `json:"occurred_at"`
	IncidentID  string    `json:"incident_id,omitempty"`
	Message     string    `json:"message"`
	Source      string    `json:"source,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Reading     float64   `json:"reading,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Token mirrors POST /token.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

type confirmRequest struct {
	Answer string `json:"answer"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
