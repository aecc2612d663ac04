package scoring

import (
	"fmt"
	"net"
	"strings"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// WirelessScorer compares the live association against the trusted network identity.
// The network name carries no trust weight by default; it can always be cloned.
type WirelessScorer struct {
	p WirelessParams
}

// NewWirelessScorer creates the identity scorer.
func NewWirelessScorer(p WirelessParams) *WirelessScorer {
	return &WirelessScorer{p: p}
}

func (s *WirelessScorer) Channel() domain.Channel { return domain.ChannelWireless }

func (s *WirelessScorer) Score(profile *domain.DeviceProfile, snap domain.ChannelSnapshot) domain.VectorScore {
	at := snap.ObservedAt
	w := snap.Wireless
	if w == nil {
		return domain.InsufficientScore(domain.ChannelWireless, snap.DeviceID, at, "no wireless features")
	}
	if profile == nil || profile.TrustedNetwork == nil {
		return domain.InsufficientScore(domain.ChannelWireless, snap.DeviceID, at, "no trusted network enrolled")
	}
	if !domain.IsValidOUI(w.VendorOUI) {
		return domain.InsufficientScore(domain.ChannelWireless, snap.DeviceID, at, "vendor prefix missing or malformed")
	}
	if w.Security == domain.SecurityUnknown {
		return domain.InsufficientScore(domain.ChannelWireless, snap.DeviceID, at, "security class unknown")
	}

	trusted := profile.TrustedNetwork
	total := s.p.WeightVendor + s.p.WeightSecurity + s.p.WeightBand + s.p.WeightSSID
	if !domain.IsFinite(total) || total <= 0 {
		return domain.InsufficientScore(domain.ChannelWireless, snap.DeviceID, at, "identity weights not configured")
	}

	var (
		matched  float64
		evidence []string
	)

	vendorMatch := normalizeOUI(w.VendorOUI) == normalizeOUI(trusted.VendorOUI)
	if vendorMatch {
		matched += s.p.WeightVendor
	} else {
		evidence = append(evidence, fmt.Sprintf("vendor prefix %s differs from trusted %s",
			describeVendor(w.VendorOUI, w.VendorName), describeVendor(trusted.VendorOUI, trusted.VendorName)))
	}

	securityMatch := w.Security.Rank() >= trusted.Security.Rank()
	switch {
	case !securityMatch:
		evidence = append(evidence, fmt.Sprintf("security downgrade %s -> %s", trusted.Security, w.Security))
	case w.Security.Rank() > trusted.Security.Rank():
		matched += s.p.WeightSecurity
		evidence = append(evidence, fmt.Sprintf("security upgrade %s -> %s", trusted.Security, w.Security))
	default:
		matched += s.p.WeightSecurity
	}

	bandMatch := trusted.Band == "" || strings.EqualFold(w.Band, trusted.Band)
	switch {
	case bandMatch:
		matched += s.p.WeightBand
	case vendorMatch && securityMatch:
		matched += s.p.WeightBand
		evidence = append(evidence, fmt.Sprintf("band %s -> %s with matching vendor and security (roaming)", trusted.Band, w.Band))
	default:
		evidence = append(evidence, fmt.Sprintf("band %s differs from trusted %s", w.Band, trusted.Band))
	}

	if w.SSID == trusted.SSID {
		matched += s.p.WeightSSID
	} else {
		evidence = append(evidence, fmt.Sprintf("network name %q differs from trusted %q", w.SSID, trusted.SSID))
	}

	similarity := domain.Clamp01(matched / total)
	status := domain.StatusSafe
	switch {
	case similarity < s.p.CriticalSimilarity:
		status = domain.StatusCritical
	case similarity < s.p.WarningSimilarity:
		status = domain.StatusWarning
	}

	if w.Security == domain.SecurityOpen || w.Security == domain.SecurityWEP {
		evidence = append(evidence, fmt.Sprintf("network uses weak security (%s)", w.Security))
	}
	if w.RSSI != 0 && w.RSSI > s.p.ProximityRSSI {
		evidence = append(evidence, fmt.Sprintf("signal %d dBm unusually strong (possible nearby rogue transmitter)", w.RSSI))
	}
	if isLocallyAdministered(w.BSSID) {
		evidence = append(evidence, fmt.Sprintf("BSSID %s is locally administered", w.BSSID))
	}

	evidence = append([]string{fmt.Sprintf("identity similarity %.2f", similarity)}, evidence...)
	return domain.NewVectorScore(domain.ChannelWireless, snap.DeviceID, 1-similarity, status, at, evidence...)
}

func normalizeOUI(oui string) string {
	return strings.ToUpper(strings.ReplaceAll(oui, "-", ":"))
}

func describeVendor(oui, name string) string {
	if name == "" || name == "Unknown" {
		return normalizeOUI(oui)
	}
	return fmt.Sprintf("%s (%s)", normalizeOUI(oui), name)
}

// isLocallyAdministered checks the LAA bit of the first octet.
func isLocallyAdministered(bssid string) bool {
	hw, err := net.ParseMAC(bssid)
	if err != nil || len(hw) == 0 {
		return false
	}
	return hw[0]&0x02 != 0
}
