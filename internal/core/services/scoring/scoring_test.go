package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var observedAt = time.Date(2026, 3, 14, 3, 15, 0, 0, time.UTC)

func trustedProfile() *domain.DeviceProfile {
	p := domain.NewDeviceProfile("dev-1")
	p.Enroll(domain.TrustedNetwork{
		SSID:       "CorpNet",
		VendorOUI:  "00:1B:54",
		VendorName: "Cisco",
		Security:   domain.SecurityWPA2,
		Band:       "5GHz",
	}, observedAt)
	for i := 0; i < 5; i++ {
		p.ObserveRTT(20, 0.1, observedAt)
	}
	p.AdaptTraffic(3, 10000, 0.05, observedAt)
	return p
}

func wirelessSnap(oui string, sec domain.SecurityClass, band string) domain.ChannelSnapshot {
	return domain.ChannelSnapshot{
		DeviceID:   "dev-1",
		Channel:    domain.ChannelWireless,
		ObservedAt: observedAt,
		Wireless: &domain.WirelessFeatures{
			SSID:      "CorpNet",
			BSSID:     "00:1B:54:11:22:33",
			VendorOUI: oui,
			Security:  sec,
			Band:      band,
			RSSI:      -60,
		},
	}
}

func TestWirelessScorer(t *testing.T) {
	scorer := NewWirelessScorer(DefaultParams().Wireless)

	tests := []struct {
		name      string
		snap      domain.ChannelSnapshot
		wantScore float64
		status    domain.VectorStatus
	}{
		{"identical identity", wirelessSnap("00:1B:54", domain.SecurityWPA2, "5GHz"), 0, domain.StatusSafe},
		{"roaming across bands", wirelessSnap("00:1b:54", domain.SecurityWPA2, "2.4GHz"), 0, domain.StatusSafe},
		{"security upgrade", wirelessSnap("00:1B:54", domain.SecurityWPA3, "5GHz"), 0, domain.StatusSafe},
		{"vendor mismatch only", wirelessSnap("B8:27:EB", domain.SecurityWPA2, "5GHz"), 0.375, domain.StatusWarning},
		{"evil twin", wirelessSnap("B8:27:EB", domain.SecurityOpen, "5GHz"), 0.875, domain.StatusCritical},
		{"vendor and band mismatch", wirelessSnap("B8:27:EB", domain.SecurityWPA2, "2.4GHz"), 0.5, domain.StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := scorer.Score(trustedProfile(), tt.snap)
			assert.InDelta(t, tt.wantScore, vs.Score, 1e-9)
			assert.Equal(t, tt.status, vs.Status)
			assert.False(t, vs.InsufficientData)
			assert.NotEmpty(t, vs.Evidence)
		})
	}
}

func TestWirelessScorer_EvidenceNotes(t *testing.T) {
	scorer := NewWirelessScorer(DefaultParams().Wireless)
	snap := wirelessSnap("B8:27:EB", domain.SecurityOpen, "5GHz")
	snap.Wireless.RSSI = -20
	snap.Wireless.BSSID = "02:00:00:aa:bb:cc"
	snap.Wireless.VendorName = "Raspberry Pi"

	vs := scorer.Score(trustedProfile(), snap)

	assert.Contains(t, vs.Evidence[0], "identity similarity 0.1")
	assert.Contains(t, vs.Evidence, "vendor prefix B8:27:EB (Raspberry Pi) differs from trusted 00:1B:54 (Cisco)")
	assert.Contains(t, vs.Evidence, "security downgrade WPA2 -> OPEN")
	assert.Contains(t, vs.Evidence, "network uses weak security (OPEN)")
	assert.Contains(t, vs.Evidence, "BSSID 02:00:00:aa:bb:cc is locally administered")
}

func TestWirelessScorer_InsufficientData(t *testing.T) {
	scorer := NewWirelessScorer(DefaultParams().Wireless)

	noTrust := domain.NewDeviceProfile("dev-1")
	vs := scorer.Score(noTrust, wirelessSnap("00:1B:54", domain.SecurityWPA2, "5GHz"))
	assert.True(t, vs.InsufficientData)
	assert.Equal(t, domain.StatusSafe, vs.Status)
	assert.Zero(t, vs.Score)

	vs = scorer.Score(trustedProfile(), wirelessSnap("", domain.SecurityWPA2, "5GHz"))
	assert.True(t, vs.InsufficientData)

	vs = scorer.Score(nil, wirelessSnap("00:1B:54", domain.SecurityWPA2, "5GHz"))
	assert.True(t, vs.InsufficientData)
}

func transportSnap(rtt float64, depth int, trusted bool) domain.ChannelSnapshot {
	return domain.ChannelSnapshot{
		DeviceID:   "dev-1",
		Channel:    domain.ChannelTransport,
		ObservedAt: observedAt,
		Transport: &domain.TransportFeatures{
			RTTMillis:     rtt,
			ChainDepth:    depth,
			IssuerTrusted: trusted,
			Issuer:        "Debug CA",
		},
	}
}

func TestTransportScorer(t *testing.T) {
	scorer := NewTransportScorer(DefaultParams().Transport)

	tests := []struct {
		name   string
		snap   domain.ChannelSnapshot
		score  float64
		status domain.VectorStatus
	}{
		{"healthy handshake", transportSnap(21, 3, true), 0.0125, domain.StatusSafe},
		{"slow rtt alone is capped", transportSnap(80, 3, true), 0.5, domain.StatusWarning},
		{"untrusted issuer alone is capped", transportSnap(20, 3, false), 0.5, domain.StatusWarning},
		{"both signals turn critical", transportSnap(32, 3, false), 0.65, domain.StatusCritical},
		{"both minor but low combined score", transportSnap(30, 1, true), 0.425, domain.StatusWarning},
		{"interception without a chain", transportSnap(200, 0, false), 1, domain.StatusCritical},
		{"empty chain alone", transportSnap(20, 0, true), 0.3, domain.StatusWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := scorer.Score(trustedProfile(), tt.snap)
			assert.InDelta(t, tt.score, vs.Score, 1e-9)
			assert.Equal(t, tt.status, vs.Status)
		})
	}
}

func TestTransportScorer_LearningBaseline(t *testing.T) {
	scorer := NewTransportScorer(DefaultParams().Transport)

	vs := scorer.Score(domain.NewDeviceProfile("dev-1"), transportSnap(500, 3, false))
	assert.False(t, vs.InsufficientData)
	assert.Equal(t, domain.StatusWarning, vs.Status, "certificate alone cannot reach critical")

	vs = scorer.Score(domain.NewDeviceProfile("dev-1"), transportSnap(math.NaN(), -1, true))
	assert.True(t, vs.InsufficientData)
}

func TestTransportScorer_UntrustedIssuerWithoutChain(t *testing.T) {
	scorer := NewTransportScorer(DefaultParams().Transport)

	snap := transportSnap(200, 0, false)
	snap.Transport.Issuer = "mitmproxy"
	vs := scorer.Score(trustedProfile(), snap)
	assert.Equal(t, domain.StatusCritical, vs.Status)
	assert.Contains(t, vs.Evidence, `certificate issuer "mitmproxy" is not trusted`)
	assert.NotContains(t, vs.Evidence, "certificate chain not reported")

	vs = scorer.Score(trustedProfile(), transportSnap(20, 0, true))
	assert.Contains(t, vs.Evidence, "no certificate chain presented")
}

func trafficSnap(in, out float64) domain.ChannelSnapshot {
	return domain.ChannelSnapshot{
		DeviceID:   "dev-1",
		Channel:    domain.ChannelTraffic,
		ObservedAt: observedAt,
		Traffic:    &domain.TrafficFeatures{BytesIn: in, BytesOut: out},
	}
}

func TestTrafficScorer(t *testing.T) {
	scorer := NewTrafficScorer(DefaultParams().Traffic)

	tests := []struct {
		name   string
		snap   domain.ChannelSnapshot
		score  float64
		status domain.VectorStatus
	}{
		{"on forecast", trafficSnap(6000, 4000), 0, domain.StatusSafe},
		{"moderate spike", trafficSnap(20000, 20000), 0.6, domain.StatusWarning},
		{"exfiltration", trafficSnap(1000, 60000), 1, domain.StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := scorer.Score(trustedProfile(), tt.snap)
			assert.InDelta(t, tt.score, vs.Score, 1e-9)
			assert.Equal(t, tt.status, vs.Status)
		})
	}

	vs := scorer.Score(trustedProfile(), trafficSnap(1000, 60000))
	assert.Contains(t, vs.Evidence, "outbound 60000 bytes exceeds exfiltration threshold 50000")
}

func TestTrafficScorer_UnseenHour(t *testing.T) {
	scorer := NewTrafficScorer(DefaultParams().Traffic)
	snap := trafficSnap(100, 100)
	snap.ObservedAt = observedAt.Add(5 * time.Hour)

	vs := scorer.Score(trustedProfile(), snap)
	assert.True(t, vs.InsufficientData)
	assert.Equal(t, []string{"insufficient data: no baseline for hour 08"}, vs.Evidence)
}

func appSnap(apps ...domain.InstalledApp) domain.ChannelSnapshot {
	return domain.ChannelSnapshot{
		DeviceID:   "dev-1",
		Channel:    domain.ChannelAppRisk,
		ObservedAt: observedAt,
		Apps:       &domain.AppFeatures{Apps: apps},
	}
}

func TestAppRiskScorer(t *testing.T) {
	scorer := NewAppRiskScorer(DefaultParams().AppRisk)

	chrome := domain.InstalledApp{Package: "com.android.chrome", Permissions: []string{"INTERNET", "LOCATION"}}
	whatsapp := domain.InstalledApp{Package: "com.whatsapp", Permissions: []string{"CONTACTS", "CAMERA", "MIC"}}
	cleaner := domain.InstalledApp{Package: "com.fast.cleaner.pro", Permissions: []string{"SEND_SMS", "SYSTEM_OVERLAY", "INSTALL_PACKAGES"}}

	t.Run("benign inventory", func(t *testing.T) {
		vs := scorer.Score(nil, appSnap(chrome, whatsapp))
		assert.Equal(t, domain.StatusSafe, vs.Status)
		assert.InDelta(t, 0.25, vs.Score, 1e-9)
	})

	t.Run("dropper combination", func(t *testing.T) {
		vs := scorer.Score(nil, appSnap(chrome, cleaner))
		assert.Equal(t, domain.StatusCritical, vs.Status)
		assert.InDelta(t, 0.95, vs.Score, 1e-9)
		assert.Contains(t, vs.Evidence[1], "com.fast.cleaner.pro risk 95/100 (malicious)")
	})

	t.Run("signature and heuristics", func(t *testing.T) {
		a := scorer.Assess(domain.InstalledApp{
			Package:        "com.super.flashlight",
			Permissions:    []string{"READ_CONTACTS", "LOCATION_BACKGROUND"},
			SignatureMatch: true,
			HeuristicFlags: []string{"obfuscated", "dynamic-code"},
		})
		assert.Equal(t, 100, a.RiskScore)
		assert.True(t, a.IsMalicious)
		assert.Contains(t, a.Reasons, "contacts+background-location")
	})

	t.Run("empty inventory", func(t *testing.T) {
		vs := scorer.Score(nil, appSnap())
		assert.True(t, vs.InsufficientData)
	})
}

func TestScorers_BoundedOnMalformedInput(t *testing.T) {
	scorers := NewScorers(DefaultParams())
	require.Len(t, scorers, 4)

	nan := math.NaN()
	inf := math.Inf(1)
	snaps := []domain.ChannelSnapshot{
		{DeviceID: "dev-1", Channel: domain.ChannelWireless},
		{DeviceID: "dev-1", Channel: domain.ChannelTransport},
		{DeviceID: "dev-1", Channel: domain.ChannelTraffic},
		{DeviceID: "dev-1", Channel: domain.ChannelAppRisk},
		transportSnap(nan, 3, false),
		transportSnap(inf, 3, true),
		transportSnap(-5, -1, true),
		trafficSnap(nan, 10),
		trafficSnap(inf, 0),
		trafficSnap(-1, 0),
		trafficSnap(1e300, 1e300),
		wirelessSnap("zz:zz:zz", domain.SecurityWPA2, "5GHz"),
		wirelessSnap("00:1B:54", domain.SecurityUnknown, ""),
		appSnap(domain.InstalledApp{Package: "x", Permissions: []string{"", "  ", "SEND_SMS", "SEND_SMS"}}),
	}

	profiles := []*domain.DeviceProfile{nil, domain.NewDeviceProfile("dev-1"), trustedProfile()}

	for _, scorer := range scorers {
		for _, snap := range snaps {
			for _, profile := range profiles {
				vs := scorer.Score(profile, snap)
				assert.False(t, math.IsNaN(vs.Score), "%s produced NaN", scorer.Channel())
				assert.GreaterOrEqual(t, vs.Score, 0.0)
				assert.LessOrEqual(t, vs.Score, 1.0)
				assert.Equal(t, scorer.Channel(), vs.Channel)
			}
		}
	}
}
