package domain

import "time"

// AppAssessment is the risk reading of a single installed application.
type AppAssessment struct {
	Package     string   `json:"package"`
	RiskScore   int      `json:"risk_score"`
	IsMalicious bool     `json:"is_malicious"`
	Reasons     []string `json:"reasons,omitempty"`
}

// IncidentReport gathers everything known about a device for an operator hand-off.
type IncidentReport struct {
	DeviceID    string           `json:"device_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	State       PolicyState      `json:"state"`
	Risk        GlobalRiskState  `json:"risk"`
	Events      []ThreatEvent    `json:"events"`
	Decisions   []PolicyDecision `json:"decisions"`
	Confidence  float64          `json:"confidence"`
	ChainValid  bool             `json:"chain_valid"`
	Apps        []AppAssessment  `json:"apps,omitempty"`
}
