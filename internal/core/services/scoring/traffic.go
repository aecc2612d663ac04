package scoring

import (
	"fmt"
	"math"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// TrafficScorer measures how far observed volume departs from the device's hourly forecast.
type TrafficScorer struct {
	p TrafficParams
}

// NewTrafficScorer creates the volume forecast scorer.
func NewTrafficScorer(p TrafficParams) *TrafficScorer {
	return &TrafficScorer{p: p}
}

func (s *TrafficScorer) Channel() domain.Channel { return domain.ChannelTraffic }

func (s *TrafficScorer) Score(profile *domain.DeviceProfile, snap domain.ChannelSnapshot) domain.VectorScore {
	at := snap.ObservedAt
	t := snap.Traffic
	if t == nil {
		return domain.InsufficientScore(domain.ChannelTraffic, snap.DeviceID, at, "no traffic features")
	}
	if !domain.IsFinite(t.BytesIn) || !domain.IsFinite(t.BytesOut) || t.BytesIn < 0 || t.BytesOut < 0 {
		return domain.InsufficientScore(domain.ChannelTraffic, snap.DeviceID, at, "byte counters invalid")
	}
	if s.p.Normalization <= 0 || !domain.IsFinite(s.p.Normalization) {
		return domain.InsufficientScore(domain.ChannelTraffic, snap.DeviceID, at, "normalization constant not configured")
	}
	if profile == nil {
		return domain.InsufficientScore(domain.ChannelTraffic, snap.DeviceID, at, "no traffic baseline")
	}

	hour := at.Hour()
	predicted, ok := profile.Traffic.Predict(hour)
	if !ok {
		return domain.InsufficientScore(domain.ChannelTraffic, snap.DeviceID, at, fmt.Sprintf("no baseline for hour %02d", hour))
	}

	actual := t.Volume()
	residual := math.Abs(actual - predicted)
	score := domain.Clamp01(residual / s.p.Normalization)

	evidence := []string{
		fmt.Sprintf("volume %.0f bytes vs predicted %.0f (residual %.0f)", actual, predicted, residual),
		fmt.Sprintf("baseline confidence %.2f", profile.Confidence),
	}
	if t.BytesOut > s.p.Normalization {
		evidence = append(evidence, fmt.Sprintf("outbound %.0f bytes exceeds exfiltration threshold %.0f", t.BytesOut, s.p.Normalization))
	}

	return domain.NewVectorScore(domain.ChannelTraffic, snap.DeviceID, score,
		statusFor(score, s.p.WarningScore, s.p.CriticalScore), at, evidence...)
}
