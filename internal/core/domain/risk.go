package domain

import "time"

// GlobalRiskState is the fused, smoothed risk of one device. Owned by the aggregator.
type GlobalRiskState struct {
	DeviceID      string                  `json:"device_id"`
	SmoothedScore float64                 `json:"smoothed_score"`
	RawScore      float64                 `json:"raw_score"`
	LastScores    map[Channel]VectorScore `json:"last_vector_scores"`
	Contributions map[Channel]float64     `json:"contributions"`
	UpdatedAt     time.Time               `json:"updated_at"`
	Degraded      bool                    `json:"degraded"`
	Ticks         int64                   `json:"ticks"`
}

// Clone copies the state including the score map.
func (s GlobalRiskState) Clone() GlobalRiskState {
	cp := s
	cp.LastScores = make(map[Channel]VectorScore, len(s.LastScores))
	for ch, vs := range s.LastScores {
		cp.LastScores[ch] = vs
	}
	cp.Contributions = make(map[Channel]float64, len(s.Contributions))
	for ch, c := range s.Contributions {
		cp.Contributions[ch] = c
	}
	return cp
}

// CriticalChannels returns channels whose latest score is critical, in evaluation order.
func (s GlobalRiskState) CriticalChannels() []Channel {
	return s.channelsAtLeast(StatusCritical)
}

// ElevatedChannels returns channels whose latest status is warning or critical.
func (s GlobalRiskState) ElevatedChannels() []Channel {
	return s.channelsAtLeast(StatusWarning)
}

// TopContributor returns the channel with the largest weighted contribution.
// Ties go to the critical-class channel, then to evaluation order.
func (s GlobalRiskState) TopContributor() (Channel, bool) {
	var (
		best  Channel
		value = -1.0
	)
	for _, ch := range AllChannels {
		c, ok := s.Contributions[ch]
		if !ok || c <= 0 {
			continue
		}
		if c > value || (c == value && ch.IsCriticalClass() && !best.IsCriticalClass()) {
			best, value = ch, c
		}
	}
	return best, value > 0
}

func (s GlobalRiskState) channelsAtLeast(min VectorStatus) []Channel {
	var out []Channel
	for _, ch := range AllChannels {
		if vs, ok := s.LastScores[ch]; ok && vs.Status.Rank() >= min.Rank() {
			out = append(out, ch)
		}
	}
	return out
}

// DeviceRiskSnapshot is the read model for dashboards and caches.
type DeviceRiskSnapshot struct {
	Risk         GlobalRiskState `json:"risk"`
	State        PolicyState     `json:"state"`
	ActiveEvents int             `json:"active_events"`
	Confidence   float64         `json:"confidence"`
}
