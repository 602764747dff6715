package model

// Caller is the verified identity behind an orchestration trigger request.
type Caller struct {
	Subject string `json:"subject"`
	Email   string `json:"email,omitempty"`
}
