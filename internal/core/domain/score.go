package domain

import "time"

// VectorStatus is the qualitative reading of a channel score.
type VectorStatus string

const (
	StatusSafe     VectorStatus = "safe"
	StatusWarning  VectorStatus = "warning"
	StatusCritical VectorStatus = "critical"
)

// Rank orders statuses so the worst of several can be picked.
func (s VectorStatus) Rank() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	}
	return 0
}

// VectorScore is the bounded anomaly estimate for one channel at one tick.
type VectorScore struct {
	Channel          Channel      `json:"channel"`
	DeviceID         string       `json:"device_id"`
	Score            float64      `json:"score"`
	Status           VectorStatus `json:"status"`
	Timestamp        time.Time    `json:"timestamp"`
	Evidence         []string     `json:"evidence"`
	InsufficientData bool         `json:"insufficient_data,omitempty"`
	Stale            bool         `json:"stale,omitempty"`
}

// NewVectorScore builds a score, clamping to [0,1] and replacing non-finite input by 0.
func NewVectorScore(ch Channel, deviceID string, score float64, status VectorStatus, at time.Time, evidence ...string) VectorScore {
	return VectorScore{
		Channel:   ch,
		DeviceID:  deviceID,
		Score:     Clamp01(score),
		Status:    status,
		Timestamp: at,
		Evidence:  evidence,
	}
}

// InsufficientScore is the uniform "cannot evaluate" answer: zero, safe, with a reason.
func InsufficientScore(ch Channel, deviceID string, at time.Time, reason string) VectorScore {
	vs := NewVectorScore(ch, deviceID, 0, StatusSafe, at, "insufficient data: "+reason)
	vs.InsufficientData = true
	return vs
}

// IsCritical reports a critical status.
func (v VectorScore) IsCritical() bool {
	return v.Status == StatusCritical
}
