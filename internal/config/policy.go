package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/lcalzada-xor/mids/internal/core/services/aggregator"
	"github.com/lcalzada-xor/mids/internal/core/services/correlator"
	"github.com/lcalzada-xor/mids/internal/core/services/policy"
	"github.com/lcalzada-xor/mids/internal/core/services/profile"
	"github.com/lcalzada-xor/mids/internal/core/services/scoring"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is returned when a policy file parses but its values cannot be used.
var ErrInvalidPolicy = errors.New("invalid policy")

// policyFile is the on-disk layout. Sections left out keep their defaults.
type policyFile struct {
	Scoring     scoring.Params     `yaml:"scoring"`
	Aggregation aggregator.Params  `yaml:"aggregation"`
	Policy      policy.Params      `yaml:"policy"`
	Profile     profile.Params     `yaml:"profile"`
	Runtime     correlator.Runtime `yaml:"runtime"`
}

// LoadPolicy reads correlation settings from a YAML file. An empty path
// returns the compiled-in defaults.
func LoadPolicy(path string) (correlator.Settings, error) {
	if path == "" {
		return correlator.DefaultSettings(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return correlator.Settings{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes YAML over the defaults and validates the result.
func ParsePolicy(data []byte) (correlator.Settings, error) {
	d := correlator.DefaultSettings()
	pf := policyFile{
		Scoring:     d.Scoring,
		Aggregation: d.Aggregator,
		Policy:      d.Policy,
		Profile:     d.Profile,
		Runtime:     d.Runtime,
	}
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return correlator.Settings{}, fmt.Errorf("failed to parse policy YAML: %w", err)
	}

	s := correlator.Settings{
		Scoring:    pf.Scoring,
		Aggregator: pf.Aggregation,
		Policy:     pf.Policy,
		Profile:    pf.Profile,
		Runtime:    pf.Runtime,
	}
	if err := ValidateSettings(s); err != nil {
		return correlator.Settings{}, err
	}
	return s, nil
}

// ValidateSettings rejects values that would break the fusion or the state machine.
func ValidateSettings(s correlator.Settings) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidPolicy}, args...)...))
		}
	}

	w := s.Aggregator.Weights
	check(w.Wireless >= 0 && w.Transport >= 0 && w.Traffic >= 0 && w.AppRisk >= 0, "channel weights must not be negative")
	check(w.Wireless+w.Transport+w.Traffic+w.AppRisk > 0, "at least one channel weight must be positive")
	check(s.Aggregator.Alpha > 0 && s.Aggregator.Alpha <= 1, "smoothing_alpha %.3f outside (0,1]", s.Aggregator.Alpha)

	p := s.Policy
	check(p.ReleaseThreshold < p.ElevatedThreshold, "release_threshold must be below elevated_threshold")
	check(p.ElevatedThreshold <= p.HighSeverityThreshold && p.HighSeverityThreshold <= p.DefenseThreshold,
		"thresholds must satisfy elevated <= high_severity <= defense")
	check(p.DefenseThreshold <= 100, "defense_threshold %.1f above 100", p.DefenseThreshold)
	check(p.DwellTicks >= 1, "dwell_ticks must be at least 1")

	ws := s.Scoring.Wireless
	check(ws.CriticalSimilarity <= ws.WarningSimilarity, "wireless critical_similarity must not exceed warning_similarity")
	check(ws.WeightVendor+ws.WeightSecurity+ws.WeightBand+ws.WeightSSID > 0, "wireless attribute weights must sum above zero")
	check(s.Scoring.Traffic.Normalization > 0, "traffic normalization must be positive")

	r := s.Runtime
	check(r.TickInterval > 0, "tick_interval must be positive")
	check(r.ScorerTimeout > 0, "scorer_timeout must be positive")
	check(r.DispatchTimeout > 0, "dispatch_timeout must be positive")

	return errors.Join(errs...)
}
