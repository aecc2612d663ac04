package domain

import (
	"fmt"
	"strings"
	"time"
)

// SecurityClass is the encryption/authentication protocol class advertised by a network.
type SecurityClass string

const (
	SecurityOpen    SecurityClass = "OPEN"
	SecurityWEP     SecurityClass = "WEP"
	SecurityWPA     SecurityClass = "WPA"
	SecurityWPA2    SecurityClass = "WPA2"
	SecurityWPA3    SecurityClass = "WPA3"
	SecurityUnknown SecurityClass = ""
)

// ParseSecurityClass normalizes producer spellings ("wpa2-psk", "WPA2/WPA3") to a class.
// Mixed-mode advertisements resolve to the weakest class offered.
func ParseSecurityClass(s string) SecurityClass {
	weakest := SecurityUnknown
	for _, token := range strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return r == '/' || r == ',' || r == ' ' || r == '+'
	}) {
		c := parseSecurityToken(token)
		if c == SecurityUnknown {
			continue
		}
		if weakest == SecurityUnknown || c.Rank() < weakest.Rank() {
			weakest = c
		}
	}
	return weakest
}

func parseSecurityToken(u string) SecurityClass {
	switch {
	case strings.HasPrefix(u, "OPEN") || u == "NONE":
		return SecurityOpen
	case strings.HasPrefix(u, "WEP"):
		return SecurityWEP
	case strings.HasPrefix(u, "WPA3") || strings.HasPrefix(u, "SAE"):
		return SecurityWPA3
	case strings.HasPrefix(u, "WPA2") || strings.HasPrefix(u, "RSN"):
		return SecurityWPA2
	case strings.HasPrefix(u, "WPA"):
		return SecurityWPA
	}
	return SecurityUnknown
}

// Rank orders classes by strength; unknown ranks below OPEN.
func (s SecurityClass) Rank() int {
	switch s {
	case SecurityOpen:
		return 1
	case SecurityWEP:
		return 2
	case SecurityWPA:
		return 3
	case SecurityWPA2:
		return 4
	case SecurityWPA3:
		return 5
	}
	return 0
}

// WirelessFeatures describes the network a device is currently associated with.
type WirelessFeatures struct {
	SSID       string        `json:"ssid"`
	BSSID      string        `json:"bssid"`
	VendorOUI  string        `json:"vendor_oui"`
	VendorName string        `json:"vendor_name,omitempty"`
	Security   SecurityClass `json:"security"`
	Band       string        `json:"band"`
	Channel    int           `json:"channel,omitempty"`
	RSSI       int           `json:"rssi"`
}

// Identity projects the observed association onto the trusted identity shape.
func (w WirelessFeatures) Identity() TrustedNetwork {
	return TrustedNetwork{
		SSID:       w.SSID,
		VendorOUI:  strings.ToUpper(w.VendorOUI),
		VendorName: w.VendorName,
		Security:   w.Security,
		Band:       w.Band,
	}
}

// TransportFeatures carries handshake timing and certificate chain indicators.
// ChainDepth 0 means no chain was presented; a negative depth means the
// producer could not observe the chain.
type TransportFeatures struct {
	RTTMillis     float64 `json:"rtt_ms"`
	ChainDepth    int     `json:"chain_depth"`
	IssuerTrusted bool    `json:"issuer_trusted"`
	Issuer        string  `json:"issuer,omitempty"`
	Host          string  `json:"host,omitempty"`
}

// TrafficFeatures carries byte counters for the observation interval.
type TrafficFeatures struct {
	BytesIn  float64 `json:"bytes_in"`
	BytesOut float64 `json:"bytes_out"`
}

// Volume is the total bytes moved in the interval.
func (t TrafficFeatures) Volume() float64 {
	return t.BytesIn + t.BytesOut
}

// InstalledApp is one package of an application inventory.
type InstalledApp struct {
	Package        string   `json:"package"`
	Name           string   `json:"name,omitempty"`
	Permissions    []string `json:"permissions"`
	SignatureMatch bool     `json:"signature_match"`
	HeuristicFlags []string `json:"heuristic_flags,omitempty"`
}

// AppFeatures is the installed-application inventory of a device.
type AppFeatures struct {
	Apps []InstalledApp `json:"apps"`
}

// ChannelSnapshot is one immutable per-channel observation for a device tick.
// Exactly one feature bag, matching Channel, is set.
type ChannelSnapshot struct {
	DeviceID   string             `json:"device_id"`
	Channel    Channel            `json:"channel"`
	ObservedAt time.Time          `json:"observed_at"`
	Wireless   *WirelessFeatures  `json:"wireless,omitempty"`
	Transport  *TransportFeatures `json:"transport,omitempty"`
	Traffic    *TrafficFeatures   `json:"traffic,omitempty"`
	Apps       *AppFeatures       `json:"apps,omitempty"`
}

// Validate checks the structural shape of the snapshot. Feature values are not
// range checked here; scorers report out-of-range values as insufficient data.
func (s ChannelSnapshot) Validate() error {
	if !IsValidDeviceID(s.DeviceID) {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceID, s.DeviceID)
	}
	if !s.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidSnapshot, s.Channel)
	}

	bags := 0
	for _, set := range []bool{s.Wireless != nil, s.Transport != nil, s.Traffic != nil, s.Apps != nil} {
		if set {
			bags++
		}
	}
	if bags != 1 {
		return fmt.Errorf("%w: expected exactly one feature set, got %d", ErrInvalidSnapshot, bags)
	}

	var ok bool
	switch s.Channel {
	case ChannelWireless:
		ok = s.Wireless != nil
	case ChannelTransport:
		ok = s.Transport != nil
	case ChannelTraffic:
		ok = s.Traffic != nil
	case ChannelAppRisk:
		ok = s.Apps != nil
	}
	if !ok {
		return fmt.Errorf("%w: feature set does not match channel %s", ErrInvalidSnapshot, s.Channel)
	}
	return nil
}

// WithWirelessVendor returns a copy of the snapshot with the vendor name filled in.
// Snapshots are treated as immutable, so enrichment never writes through the pointer.
func (s ChannelSnapshot) WithWirelessVendor(vendor string) ChannelSnapshot {
	if s.Wireless == nil {
		return s
	}
	w := *s.Wireless
	w.VendorName = vendor
	s.Wireless = &w
	return s
}
