package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidMAC(t *testing.T) {
	tests := []struct {
		mac   string
		valid bool
	}{
		{"AA:BB:CC:DD:EE:FF", true},
		{"aa:bb:cc:dd:ee:ff", true},
		{"00:11:22:33:44:55", true},
		{"invalid", false},
		{"AA:BB:CC:DD:EE", false},
		{"AA:BB:CC:DD:EE:FF:GG", false},
		{"", false},
	}

	for _, tt := range tests {
		if IsValidMAC(tt.mac) != tt.valid {
			t.Errorf("IsValidMAC(%s) = %v; want %v", tt.mac, IsValidMAC(tt.mac), tt.valid)
		}
	}
}

func TestIsValidDeviceID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"phone-01", true},
		{"aa:bb:cc:dd:ee:ff", true},
		{"tablet_7.lab", true},
		{"", false},
		{"-leading", false},
		{"has space", false},
		{"mids.telemetry.>", false},
		{string(make([]byte, 200)), false},
	}

	for _, tt := range tests {
		if IsValidDeviceID(tt.id) != tt.valid {
			t.Errorf("IsValidDeviceID(%q) = %v; want %v", tt.id, IsValidDeviceID(tt.id), tt.valid)
		}
	}
}

func TestClampRange(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
	assert.Equal(t, 0.0, Clamp01(math.Inf(1)))
	assert.Equal(t, 1.0, Clamp01(3))
	assert.Equal(t, 0.25, Clamp01(0.25))
	assert.Equal(t, 100.0, ClampRange(140, 0, 100))
}

func TestParseBand(t *testing.T) {
	tests := []struct {
		in   string
		want WiFiBand
	}{
		{"5GHz", Band5GHz},
		{"5 ghz", Band5GHz},
		{"5", Band5GHz},
		{"2.4", Band24GHz},
		{"2.4GHz", Band24GHz},
		{"6ghz", Band6GHz},
	}
	for _, tt := range tests {
		got, err := ParseBand(tt.in)
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseBand("60GHz")
	assert.ErrorIs(t, err, ErrUnsupportedBand)
}
