package fingerprint

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParsePrefix extracts the OUI ("XX:XX:XX") from a full hardware address or
// a bare 3-byte prefix. Supports ":", "-" and "." separators or none at all.
func ParsePrefix(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", ErrEmptyMAC
	}
	raw := strings.NewReplacer(":", "", "-", "", ".", "", " ", "").Replace(strings.TrimSpace(s))
	if len(raw) != 6 && len(raw) != 12 {
		return "", &ValidationError{Field: "mac", Value: s, Err: ErrInvalidMAC}
	}
	b, err := hex.DecodeString(raw[:6])
	if err != nil {
		return "", &ValidationError{Field: "mac", Value: s, Err: ErrInvalidMAC}
	}
	if len(raw) == 12 {
		if _, err := hex.DecodeString(raw[6:]); err != nil {
			return "", &ValidationError{Field: "mac", Value: s, Err: ErrInvalidMAC}
		}
	}
	return fmt.Sprintf("%02X:%02X:%02X", b[0], b[1], b[2]), nil
}

// IsLocallyAdministered reports whether the LAA bit (0x02 of the first octet)
// is set on a normalized prefix. Randomized addresses carry it.
func IsLocallyAdministered(prefix string) bool {
	raw := strings.ReplaceAll(prefix, ":", "")
	if len(raw) < 2 {
		return false
	}
	b, err := hex.DecodeString(raw[:2])
	if err != nil {
		return false
	}
	return b[0]&0x02 != 0
}
