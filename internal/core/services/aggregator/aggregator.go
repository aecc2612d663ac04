// Package aggregator fuses per-channel vector scores into one smoothed risk per device.
package aggregator

import (
	"sync"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// ChannelWeights are the static category weights of the weighted sum.
type ChannelWeights struct {
	Wireless  float64 `yaml:"wireless"`
	Transport float64 `yaml:"transport"`
	Traffic   float64 `yaml:"traffic"`
	AppRisk   float64 `yaml:"app_risk"`
}

// For returns the weight of a channel; unknown channels weigh 0.
func (w ChannelWeights) For(ch domain.Channel) float64 {
	switch ch {
	case domain.ChannelWireless:
		return w.Wireless
	case domain.ChannelTransport:
		return w.Transport
	case domain.ChannelTraffic:
		return w.Traffic
	case domain.ChannelAppRisk:
		return w.AppRisk
	}
	return 0
}

// Params configures fusion and smoothing.
type Params struct {
	Weights ChannelWeights `yaml:"weights"`
	Alpha   float64        `yaml:"smoothing_alpha"`
}

// DefaultParams weights identity and transport 3x the other channels, alpha 0.2.
func DefaultParams() Params {
	return Params{
		Weights: ChannelWeights{Wireless: 3, Transport: 3, Traffic: 1, AppRisk: 1},
		Alpha:   0.2,
	}
}

// Aggregator owns the GlobalRiskState of every device. Callers must serialize
// Update and Reset per device; the internal lock only protects the map.
type Aggregator struct {
	mu     sync.RWMutex
	params Params
	states map[string]*domain.GlobalRiskState
}

// New creates an aggregator with the given parameters.
func New(p Params) *Aggregator {
	return &Aggregator{
		params: p,
		states: make(map[string]*domain.GlobalRiskState),
	}
}

// SetParams swaps weights and alpha; applies from the next update.
func (a *Aggregator) SetParams(p Params) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.params = p
}

// Params returns the active parameters.
func (a *Aggregator) Params() Params {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.params
}

// Update merges fresh scores into the device state and recomputes the fused risk.
// Channels without a fresh score keep their last known value, or 0 if never observed.
// degraded marks a tick where some scorer timed out and its stale value was reused.
func (a *Aggregator) Update(deviceID string, fresh []domain.VectorScore, degraded bool, at time.Time) domain.GlobalRiskState {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.states[deviceID]
	if !ok {
		st = &domain.GlobalRiskState{
			DeviceID:   deviceID,
			LastScores: make(map[domain.Channel]domain.VectorScore),
		}
		a.states[deviceID] = st
	}

	for ch, vs := range st.LastScores {
		vs.Stale = true
		st.LastScores[ch] = vs
	}
	for _, vs := range fresh {
		vs.Stale = false
		st.LastScores[vs.Channel] = vs
	}

	raw, contributions := fuse(a.params.Weights, st.LastScores)
	alpha := domain.Clamp01(a.params.Alpha)

	st.RawScore = raw
	st.Contributions = contributions
	st.SmoothedScore = domain.ClampRange(alpha*raw+(1-alpha)*st.SmoothedScore, 0, 100)
	st.Degraded = degraded
	st.UpdatedAt = at
	st.Ticks++

	return st.Clone()
}

// fuse computes the normalized weighted sum in [0,100] and each channel's share of it.
func fuse(w ChannelWeights, scores map[domain.Channel]domain.VectorScore) (float64, map[domain.Channel]float64) {
	contributions := make(map[domain.Channel]float64, len(domain.AllChannels))
	var sum, total float64
	for _, ch := range domain.AllChannels {
		weight := w.For(ch)
		if !domain.IsFinite(weight) || weight <= 0 {
			continue
		}
		total += weight
		s := 0.0
		if vs, ok := scores[ch]; ok {
			s = domain.Clamp01(vs.Score)
		}
		sum += weight * s
		contributions[ch] = weight * s
	}
	if total == 0 {
		return 0, contributions
	}
	for ch, c := range contributions {
		contributions[ch] = c / total * 100
	}
	return domain.ClampRange(sum/total*100, 0, 100), contributions
}

// Snapshot returns a copy of the device state.
func (a *Aggregator) Snapshot(deviceID string) (domain.GlobalRiskState, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.states[deviceID]
	if !ok {
		return domain.GlobalRiskState{}, false
	}
	return st.Clone(), true
}

// Reset clears the smoothed score and the remembered channel scores of a device.
func (a *Aggregator) Reset(deviceID string, at time.Time) domain.GlobalRiskState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := &domain.GlobalRiskState{
		DeviceID:      deviceID,
		LastScores:    make(map[domain.Channel]domain.VectorScore),
		Contributions: make(map[domain.Channel]float64),
		UpdatedAt:     at,
	}
	a.states[deviceID] = st
	return st.Clone()
}
