package domain

import "fmt"

// Channel identifies one of the independent telemetry categories evaluated per device.
type Channel string

const (
	ChannelWireless  Channel = "wireless"
	ChannelTransport Channel = "transport"
	ChannelTraffic   Channel = "traffic"
	ChannelAppRisk   Channel = "app_risk"
)

// AllChannels lists every channel in evaluation order.
var AllChannels = []Channel{ChannelWireless, ChannelTransport, ChannelTraffic, ChannelAppRisk}

// ParseChannel validates a wire-level channel name.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown channel %q", ErrInvalidSnapshot, s)
	}
	return c, nil
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWireless, ChannelTransport, ChannelTraffic, ChannelAppRisk:
		return true
	}
	return false
}

// IsCriticalClass reports whether the channel belongs to the identity-spoofing or
// transport-integrity class. A critical status on these channels alone forces a
// protective transition.
func (c Channel) IsCriticalClass() bool {
	return c == ChannelWireless || c == ChannelTransport
}

// Label is the human readable name used in event descriptions and reports.
func (c Channel) Label() string {
	switch c {
	case ChannelWireless:
		return "Wireless identity"
	case ChannelTransport:
		return "Transport integrity"
	case ChannelTraffic:
		return "Traffic volume"
	case ChannelAppRisk:
		return "Application risk"
	}
	return string(c)
}
