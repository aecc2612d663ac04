package domain

import (
	"errors"
	"strings"
)

// WiFiBand represents a typed string for frequency bands.
type WiFiBand string

const (
	Band24GHz WiFiBand = "2.4GHz"
	Band5GHz  WiFiBand = "5GHz"
	Band6GHz  WiFiBand = "6GHz"
)

var ErrUnsupportedBand = errors.New("unsupported wifi band")

// ParseBand maps producer spellings ("5", "5ghz", "5 GHz", "2.4") to a band.
func ParseBand(s string) (WiFiBand, error) {
	v := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	switch strings.TrimSuffix(v, "ghz") {
	case "2.4", "2":
		return Band24GHz, nil
	case "5":
		return Band5GHz, nil
	case "6":
		return Band6GHz, nil
	}
	return "", ErrUnsupportedBand
}
