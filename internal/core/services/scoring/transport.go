package scoring

import (
	"fmt"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// TransportScorer combines handshake RTT deviation with certificate chain trust.
// A single noisy signal is capped below the critical cut; both must exceed their
// minor thresholds before the channel can turn critical.
type TransportScorer struct {
	p TransportParams
}

// NewTransportScorer creates the transport integrity scorer.
func NewTransportScorer(p TransportParams) *TransportScorer {
	return &TransportScorer{p: p}
}

func (s *TransportScorer) Channel() domain.Channel { return domain.ChannelTransport }

func (s *TransportScorer) Score(profile *domain.DeviceProfile, snap domain.ChannelSnapshot) domain.VectorScore {
	at := snap.ObservedAt
	t := snap.Transport
	if t == nil {
		return domain.InsufficientScore(domain.ChannelTransport, snap.DeviceID, at, "no transport features")
	}

	var evidence []string

	rttComponent, rttAvailable := s.rttComponent(profile, t, &evidence)
	certComponent, certAvailable := s.certComponent(t, &evidence)
	if !rttAvailable && !certAvailable {
		return domain.InsufficientScore(domain.ChannelTransport, snap.DeviceID, at, "no usable RTT baseline or certificate data")
	}

	score := 0.5*rttComponent + 0.5*certComponent
	bothMinor := rttComponent >= s.rttMinorComponent() && certComponent >= s.p.CertMinor
	if !bothMinor && score > s.p.SingleSignalCap {
		score = s.p.SingleSignalCap
	}
	score = domain.Clamp01(score)

	status := domain.StatusSafe
	switch {
	case bothMinor && score >= s.p.CriticalScore:
		status = domain.StatusCritical
	case score >= s.p.WarningScore:
		status = domain.StatusWarning
	}
	if bothMinor {
		evidence = append(evidence, "timing and certificate anomalies observed together")
	}

	return domain.NewVectorScore(domain.ChannelTransport, snap.DeviceID, score, status, at, evidence...)
}

func (s *TransportScorer) rttComponent(profile *domain.DeviceProfile, t *domain.TransportFeatures, evidence *[]string) (float64, bool) {
	if !domain.IsFinite(t.RTTMillis) || t.RTTMillis <= 0 {
		*evidence = append(*evidence, "handshake RTT missing")
		return 0, false
	}
	if profile == nil || profile.Transport.Samples < s.p.MinBaselineSamples || profile.Transport.RTTMillis <= 0 {
		*evidence = append(*evidence, fmt.Sprintf("RTT %.1f ms, baseline still learning", t.RTTMillis))
		return 0, false
	}

	ratio := t.RTTMillis / profile.Transport.RTTMillis
	span := s.p.RTTSaturation - 1
	if span <= 0 {
		span = 1
	}
	component := domain.Clamp01((ratio - 1) / span)
	*evidence = append(*evidence, fmt.Sprintf("RTT %.1f ms is %.2fx baseline %.1f ms", t.RTTMillis, ratio, profile.Transport.RTTMillis))
	return component, true
}

func (s *TransportScorer) certComponent(t *domain.TransportFeatures, evidence *[]string) (float64, bool) {
	switch {
	case !t.IssuerTrusted:
		*evidence = append(*evidence, fmt.Sprintf("certificate issuer %q is not trusted", t.Issuer))
		return 1.0, true
	case t.ChainDepth < 0:
		*evidence = append(*evidence, "certificate chain not reported")
		return 0, false
	case t.ChainDepth == 0:
		*evidence = append(*evidence, "no certificate chain presented")
		return 0.6, true
	case t.ChainDepth < s.p.MinChainDepth:
		*evidence = append(*evidence, fmt.Sprintf("certificate chain depth %d below expected %d", t.ChainDepth, s.p.MinChainDepth))
		return 0.6, true
	}
	return 0, true
}

// rttMinorComponent converts the minor RTT ratio into component units.
func (s *TransportScorer) rttMinorComponent() float64 {
	span := s.p.RTTSaturation - 1
	if span <= 0 {
		span = 1
	}
	return domain.Clamp01((s.p.RTTMinorRatio - 1) / span)
}
