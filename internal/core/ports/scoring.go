package ports

import "github.com/lcalzada-xor/mids/internal/core/domain"

// VectorScorer maps one channel snapshot to a bounded anomaly score.
// Implementations must be pure: same inputs, same output, no side effects.
type VectorScorer interface {
	// Channel returns the channel this scorer evaluates.
	Channel() domain.Channel

	// Score evaluates the snapshot against the device profile. profile may be nil.
	Score(profile *domain.DeviceProfile, snap domain.ChannelSnapshot) domain.VectorScore
}
