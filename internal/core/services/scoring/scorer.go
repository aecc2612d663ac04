// Package scoring converts channel snapshots into bounded anomaly scores.
// Every scorer is a pure function of (profile, snapshot).
package scoring

import (
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
)

// WirelessParams tunes the identity comparison.
type WirelessParams struct {
	WeightVendor       float64 `yaml:"weight_vendor"`
	WeightSecurity     float64 `yaml:"weight_security"`
	WeightBand         float64 `yaml:"weight_band"`
	WeightSSID         float64 `yaml:"weight_ssid"`
	CriticalSimilarity float64 `yaml:"critical_similarity"`
	WarningSimilarity  float64 `yaml:"warning_similarity"`
	ProximityRSSI      int     `yaml:"proximity_rssi"`
}

// TransportParams tunes the handshake integrity check.
type TransportParams struct {
	RTTSaturation      float64 `yaml:"rtt_saturation"`
	RTTMinorRatio      float64 `yaml:"rtt_minor_ratio"`
	CertMinor          float64 `yaml:"cert_minor"`
	MinChainDepth      int     `yaml:"min_chain_depth"`
	MinBaselineSamples int     `yaml:"min_baseline_samples"`
	SingleSignalCap    float64 `yaml:"single_signal_cap"`
	WarningScore       float64 `yaml:"warning_score"`
	CriticalScore      float64 `yaml:"critical_score"`
}

// TrafficParams tunes the volume forecast residual.
type TrafficParams struct {
	Normalization float64 `yaml:"normalization"`
	WarningScore  float64 `yaml:"warning_score"`
	CriticalScore float64 `yaml:"critical_score"`
}

// AppRiskParams tunes the application inventory rule table.
type AppRiskParams struct {
	MaliciousCut   int `yaml:"malicious_cut"`
	WarningCut     int `yaml:"warning_cut"`
	SignatureBonus int `yaml:"signature_bonus"`
	HeuristicBonus int `yaml:"heuristic_bonus"`
}

// Params groups the parameters of all four scorers.
type Params struct {
	Wireless  WirelessParams  `yaml:"wireless"`
	Transport TransportParams `yaml:"transport"`
	Traffic   TrafficParams   `yaml:"traffic"`
	AppRisk   AppRiskParams   `yaml:"app_risk"`
}

// DefaultParams returns the compiled-in scorer tuning.
func DefaultParams() Params {
	return Params{
		Wireless: WirelessParams{
			WeightVendor:       3,
			WeightSecurity:     4,
			WeightBand:         1,
			WeightSSID:         0,
			CriticalSimilarity: 0.6,
			WarningSimilarity:  0.9,
			ProximityRSSI:      -30,
		},
		Transport: TransportParams{
			RTTSaturation:      3.0,
			RTTMinorRatio:      1.5,
			CertMinor:          0.5,
			MinChainDepth:      2,
			MinBaselineSamples: 3,
			SingleSignalCap:    0.55,
			WarningScore:       0.3,
			CriticalScore:      0.6,
		},
		Traffic: TrafficParams{
			Normalization: 50000,
			WarningScore:  0.4,
			CriticalScore: 0.7,
		},
		AppRisk: AppRiskParams{
			MaliciousCut:   70,
			WarningCut:     30,
			SignatureBonus: 50,
			HeuristicBonus: 10,
		},
	}
}

// NewScorers builds one scorer per channel in evaluation order.
func NewScorers(p Params) []ports.VectorScorer {
	return []ports.VectorScorer{
		NewWirelessScorer(p.Wireless),
		NewTransportScorer(p.Transport),
		NewTrafficScorer(p.Traffic),
		NewAppRiskScorer(p.AppRisk),
	}
}

// statusFor maps a score onto thresholds; critical is checked first.
func statusFor(score, warning, critical float64) domain.VectorStatus {
	switch {
	case score >= critical:
		return domain.StatusCritical
	case score >= warning:
		return domain.StatusWarning
	}
	return domain.StatusSafe
}
