// Package profile owns the per-device reference profiles used by the scorers.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
)

// Params controls how baselines learn from safe observations.
type Params struct {
	ConfidenceStep      float64 `yaml:"confidence_step"`
	ResetDecay          float64 `yaml:"reset_decay"`
	TrafficLearningRate float64 `yaml:"traffic_learning_rate"`
	RTTAlpha            float64 `yaml:"rtt_alpha"`
	TrustOnFirstUse     bool    `yaml:"trust_on_first_use"`
}

// DefaultParams returns slow-learning defaults.
func DefaultParams() Params {
	return Params{
		ConfidenceStep:      0.01,
		ResetDecay:          0.5,
		TrafficLearningRate: 0.05,
		RTTAlpha:            0.1,
		TrustOnFirstUse:     true,
	}
}

// Store keeps profiles in memory and persists changes through the write queue.
type Store struct {
	mu       sync.RWMutex
	params   Params
	profiles map[string]*domain.DeviceProfile

	repo  ports.ProfileRepository
	queue ports.WriteQueue
}

// NewStore creates a profile store. repo and queue may be nil.
func NewStore(p Params, repo ports.ProfileRepository, queue ports.WriteQueue) *Store {
	return &Store{
		params:   p,
		profiles: make(map[string]*domain.DeviceProfile),
		repo:     repo,
		queue:    queue,
	}
}

// SetParams replaces the learning parameters.
func (s *Store) SetParams(p Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
}

// Load restores persisted profiles.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	profiles, err := s.repo.ListProfiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range profiles {
		p := profiles[i]
		if err := p.Validate(); err != nil {
			slog.Warn("skipping invalid stored profile", "device", p.DeviceID, "error", err)
			continue
		}
		s.profiles[p.DeviceID] = p.Clone()
	}
	return nil
}

// Get returns a copy of the device profile, or nil when the device is unknown.
func (s *Store) Get(deviceID string) *domain.DeviceProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[deviceID].Clone()
}

// Ensure returns a copy of the profile, creating an empty one on first sight.
func (s *Store) Ensure(deviceID string) *domain.DeviceProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[deviceID]
	if !ok {
		p = domain.NewDeviceProfile(deviceID)
		s.profiles[deviceID] = p
	}
	return p.Clone()
}

// Devices lists every device with a profile, sorted.
func (s *Store) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetTrustedNetwork replaces the trusted wireless identity of a device.
func (s *Store) SetTrustedNetwork(deviceID string, tn domain.TrustedNetwork, at time.Time) (domain.DeviceProfile, error) {
	if !domain.IsValidDeviceID(deviceID) {
		return domain.DeviceProfile{}, domain.ErrInvalidDeviceID
	}
	if tn.VendorOUI != "" && !domain.IsValidOUI(tn.VendorOUI) {
		return domain.DeviceProfile{}, fmt.Errorf("%w: vendor prefix %q", domain.ErrInvalidSnapshot, tn.VendorOUI)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.lockedProfile(deviceID)
	p.Enroll(tn, at)
	s.persistLocked(p)
	return *p.Clone(), nil
}

// Adapt lets baselines learn from observations of a device in the SECURE state.
// Only snapshots with a fresh safe score are learned from; a snapshot whose
// scorer timed out has no score and is skipped.
func (s *Store) Adapt(deviceID string, state domain.PolicyState, snaps []domain.ChannelSnapshot, scores map[domain.Channel]domain.VectorScore, at time.Time) {
	if state != domain.StateSecure || len(snaps) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.lockedProfile(deviceID)
	learned := false

	for _, snap := range snaps {
		if vs, ok := scores[snap.Channel]; !ok || vs.Status != domain.StatusSafe {
			continue
		}
		switch {
		case snap.Traffic != nil:
			before := p.Traffic.Samples[snap.ObservedAt.Hour()]
			p.AdaptTraffic(snap.ObservedAt.Hour(), snap.Traffic.Volume(), s.params.TrafficLearningRate, at)
			learned = learned || p.Traffic.Samples[snap.ObservedAt.Hour()] > before
		case snap.Transport != nil:
			before := p.Transport.Samples
			p.ObserveRTT(snap.Transport.RTTMillis, s.params.RTTAlpha, at)
			learned = learned || p.Transport.Samples > before
		case snap.Wireless != nil:
			if p.TrustedNetwork == nil && s.params.TrustOnFirstUse && trustable(*snap.Wireless) {
				p.Enroll(snap.Wireless.Identity(), at)
				slog.Info("trusted network enrolled on first use", "device", deviceID, "ssid", snap.Wireless.SSID, "vendor", snap.Wireless.VendorOUI)
				learned = true
			}
		}
	}

	if learned {
		p.RaiseConfidence(s.params.ConfidenceStep)
		s.persistLocked(p)
	}
}

// DecayConfidence lowers the confidence of a device after a manual reset.
func (s *Store) DecayConfidence(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[deviceID]
	if !ok {
		return
	}
	p.DecayConfidence(s.params.ResetDecay)
	s.persistLocked(p)
}

func (s *Store) lockedProfile(deviceID string) *domain.DeviceProfile {
	p, ok := s.profiles[deviceID]
	if !ok {
		p = domain.NewDeviceProfile(deviceID)
		s.profiles[deviceID] = p
	}
	return p
}

func (s *Store) persistLocked(p *domain.DeviceProfile) {
	if s.repo == nil || s.queue == nil {
		return
	}
	snapshot := *p.Clone()
	repo := s.repo
	s.queue.Enqueue("profile", func(ctx context.Context) error {
		return repo.SaveProfile(ctx, snapshot)
	})
}

func trustable(w domain.WirelessFeatures) bool {
	return domain.IsValidOUI(w.VendorOUI) && w.Security.Rank() > 0
}
