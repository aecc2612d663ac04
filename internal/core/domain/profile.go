package domain

import (
	"errors"
	"strings"
	"time"
)

// HoursPerDay is the resolution of the traffic baseline curve.
const HoursPerDay = 24

// TrustedNetwork is the last-known-trusted wireless identity of a device.
type TrustedNetwork struct {
	SSID       string        `json:"ssid"`
	VendorOUI  string        `json:"vendor_oui"`
	VendorName string        `json:"vendor_name,omitempty"`
	Security   SecurityClass `json:"security"`
	Band       string        `json:"band"`
	EnrolledAt time.Time     `json:"enrolled_at"`
}

// TransportBaseline is the rolling handshake RTT reference.
type TransportBaseline struct {
	RTTMillis float64 `json:"rtt_ms"`
	Samples   int     `json:"samples"`
}

// TrafficBaseline is a per-hour-of-day volume curve with an exponentially weighted variance.
type TrafficBaseline struct {
	Hourly   [HoursPerDay]float64 `json:"hourly"`
	Variance [HoursPerDay]float64 `json:"variance"`
	Samples  [HoursPerDay]int     `json:"samples"`
}

// Predict returns the expected volume for the given hour and whether the slot has been observed.
func (b TrafficBaseline) Predict(hour int) (float64, bool) {
	if hour < 0 || hour >= HoursPerDay {
		return 0, false
	}
	return b.Hourly[hour], b.Samples[hour] > 0
}

// DeviceProfile is the per-device reference used by scorers that compare against history.
type DeviceProfile struct {
	DeviceID       string            `json:"device_id"`
	TrustedNetwork *TrustedNetwork   `json:"trusted_network,omitempty"`
	Transport      TransportBaseline `json:"transport_baseline"`
	Traffic        TrafficBaseline   `json:"traffic_baseline"`
	Confidence     float64           `json:"confidence"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewDeviceProfile creates an empty profile with zero confidence.
func NewDeviceProfile(deviceID string) *DeviceProfile {
	return &DeviceProfile{
		DeviceID:  deviceID,
		UpdatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy safe to hand to scorers running in other goroutines.
func (p *DeviceProfile) Clone() *DeviceProfile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.TrustedNetwork != nil {
		tn := *p.TrustedNetwork
		cp.TrustedNetwork = &tn
	}
	return &cp
}

// Enroll replaces the trusted wireless identity. Only one is kept per device.
func (p *DeviceProfile) Enroll(tn TrustedNetwork, at time.Time) {
	tn.VendorOUI = strings.ToUpper(tn.VendorOUI)
	tn.EnrolledAt = at
	p.TrustedNetwork = &tn
	p.UpdatedAt = at
}

// ObserveRTT blends a handshake RTT into the rolling baseline.
func (p *DeviceProfile) ObserveRTT(rtt, alpha float64, at time.Time) {
	if !IsFinite(rtt) || rtt <= 0 {
		return
	}
	if p.Transport.Samples == 0 {
		p.Transport.RTTMillis = rtt
	} else {
		p.Transport.RTTMillis = alpha*rtt + (1-alpha)*p.Transport.RTTMillis
	}
	p.Transport.Samples++
	p.UpdatedAt = at
}

// AdaptTraffic blends an observed volume into the hour slot with the given learning rate.
// The first observation of a slot seeds it directly.
func (p *DeviceProfile) AdaptTraffic(hour int, volume, rate float64, at time.Time) {
	if hour < 0 || hour >= HoursPerDay || !IsFinite(volume) || volume < 0 {
		return
	}
	b := &p.Traffic
	if b.Samples[hour] == 0 {
		b.Hourly[hour] = volume
		b.Variance[hour] = 0
	} else {
		diff := volume - b.Hourly[hour]
		b.Hourly[hour] += rate * diff
		b.Variance[hour] = (1 - rate) * (b.Variance[hour] + rate*diff*diff)
	}
	b.Samples[hour]++
	p.UpdatedAt = at
}

// RaiseConfidence grows confidence by step, never beyond 1.
func (p *DeviceProfile) RaiseConfidence(step float64) {
	p.Confidence = Clamp01(p.Confidence + step)
}

// DecayConfidence multiplies confidence by factor, used on manual reset.
func (p *DeviceProfile) DecayConfidence(factor float64) {
	p.Confidence = Clamp01(p.Confidence * factor)
}

// Validate performs structural and domain integrity checks.
func (p *DeviceProfile) Validate() error {
	if !IsValidDeviceID(p.DeviceID) {
		return ErrInvalidDeviceID
	}
	if p.Confidence < 0 || p.Confidence > 1 || !IsFinite(p.Confidence) {
		return errors.New("profile confidence must be between 0.0 and 1.0")
	}
	if p.TrustedNetwork != nil && p.TrustedNetwork.VendorOUI != "" && !IsValidOUI(p.TrustedNetwork.VendorOUI) {
		return errors.New("trusted network vendor prefix must look like AA:BB:CC")
	}
	return nil
}
