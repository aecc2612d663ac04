package domain

import (
	"math"
	"regexp"
)

var (
	macRegex      = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)
	ouiRegex      = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){2}([0-9A-Fa-f]{2})$`)
	deviceIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,127}$`)
)

// IsValidMAC checks if the string is a valid MAC address
func IsValidMAC(mac string) bool {
	return macRegex.MatchString(mac)
}

// IsValidOUI checks for a three octet vendor prefix ("AA:BB:CC").
func IsValidOUI(oui string) bool {
	return ouiRegex.MatchString(oui)
}

// IsValidDeviceID checks that a device identifier is safe to use as a map key,
// a URL path segment and inside a NATS subject. Wildcards and whitespace are rejected.
func IsValidDeviceID(id string) bool {
	return deviceIDRegex.MatchString(id)
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Clamp01 bounds v to [0,1]; non-finite input maps to 0.
func Clamp01(v float64) float64 {
	return ClampRange(v, 0, 1)
}

// ClampRange bounds v to [lo,hi]; non-finite input maps to lo.
func ClampRange(v, lo, hi float64) float64 {
	if !IsFinite(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
