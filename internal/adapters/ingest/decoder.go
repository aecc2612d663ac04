// Package ingest turns raw telemetry envelopes from any transport into
// validated channel snapshots and hands them to the correlation engine.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lcalzada-xor/mids/internal/adapters/fingerprint"
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
	"github.com/lcalzada-xor/mids/internal/telemetry"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrSchema is returned when an envelope does not match the telemetry schema.
	// It wraps domain.ErrInvalidSnapshot.
	ErrSchema = fmt.Errorf("%w: envelope does not match schema", domain.ErrInvalidSnapshot)

	// ErrDuplicate is returned for a message id that was already accepted.
	ErrDuplicate = domain.ErrDuplicateSnapshot
)

const vendorLookupTimeout = 200 * time.Millisecond

// Envelope is the wire form of a channel snapshot.
type Envelope struct {
	MessageID  string                    `json:"message_id,omitempty"`
	DeviceID   string                    `json:"device_id"`
	Channel    string                    `json:"channel"`
	ObservedAt *time.Time                `json:"observed_at,omitempty"`
	Wireless   *wirelessEnvelope         `json:"wireless,omitempty"`
	Transport  *domain.TransportFeatures `json:"transport,omitempty"`
	Traffic    *domain.TrafficFeatures   `json:"traffic,omitempty"`
	Apps       *domain.AppFeatures       `json:"apps,omitempty"`
}

type wirelessEnvelope struct {
	SSID      string `json:"ssid"`
	BSSID     string `json:"bssid"`
	VendorOUI string `json:"vendor_oui"`
	Security  string `json:"security"`
	Band      string `json:"band"`
	Channel   int    `json:"channel"`
	RSSI      int    `json:"rssi"`
}

// Decoder validates envelopes, drops replays and enriches wireless snapshots
// with the access point vendor before passing them to the sink.
type Decoder struct {
	schema  *gojsonschema.Schema
	seen    *lru.Cache[string, struct{}]
	vendors ports.VendorLookup
	sink    ports.SnapshotSink
	logger  *slog.Logger
	now     func() time.Time
}

// NewDecoder compiles the envelope schema. vendors may be nil.
func NewDecoder(sink ports.SnapshotSink, vendors ports.VendorLookup, dedupeSize int, logger *slog.Logger) (*Decoder, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to load telemetry schema: %w", err)
	}
	if dedupeSize <= 0 {
		dedupeSize = 4096
	}
	seen, err := lru.New[string, struct{}](dedupeSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		schema:  schema,
		seen:    seen,
		vendors: vendors,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Handle decodes one JSON envelope received on transport and ingests it.
func (d *Decoder) Handle(ctx context.Context, transport string, raw []byte) (domain.ChannelSnapshot, error) {
	snap, msgID, err := d.Decode(ctx, raw)
	if err != nil {
		telemetry.SnapshotsRejected.WithLabelValues(transport, rejectReason(err)).Inc()
		return domain.ChannelSnapshot{}, err
	}

	if msgID != "" {
		if ok, _ := d.seen.ContainsOrAdd(msgID, struct{}{}); ok {
			telemetry.SnapshotsRejected.WithLabelValues(transport, "duplicate").Inc()
			return domain.ChannelSnapshot{}, fmt.Errorf("%w: %s", ErrDuplicate, msgID)
		}
	}

	if err := d.sink.Ingest(ctx, snap); err != nil {
		telemetry.SnapshotsRejected.WithLabelValues(transport, rejectReason(err)).Inc()
		if msgID != "" {
			d.seen.Remove(msgID)
		}
		return domain.ChannelSnapshot{}, err
	}
	telemetry.SnapshotsIngested.WithLabelValues(transport, string(snap.Channel)).Inc()
	return snap, nil
}

// HandleDocument ingests an already parsed document, as delivered by gRPC.
func (d *Decoder) HandleDocument(ctx context.Context, transport string, doc map[string]any) (domain.ChannelSnapshot, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return domain.ChannelSnapshot{}, fmt.Errorf("%w: %v", domain.ErrInvalidSnapshot, err)
	}
	return d.Handle(ctx, transport, raw)
}

// Decode validates and converts an envelope without ingesting it. It returns
// the producer message id, empty when none was sent.
func (d *Decoder) Decode(ctx context.Context, raw []byte) (domain.ChannelSnapshot, string, error) {
	result, err := d.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return domain.ChannelSnapshot{}, "", fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return domain.ChannelSnapshot{}, "", fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.ChannelSnapshot{}, "", fmt.Errorf("%w: %v", ErrSchema, err)
	}

	snap := domain.ChannelSnapshot{
		DeviceID:  strings.TrimSpace(env.DeviceID),
		Channel:   domain.Channel(env.Channel),
		Transport: env.Transport,
		Traffic:   env.Traffic,
		Apps:      env.Apps,
	}
	if env.ObservedAt != nil {
		snap.ObservedAt = env.ObservedAt.UTC()
	} else {
		snap.ObservedAt = d.now().UTC()
	}
	if env.Wireless != nil {
		snap.Wireless = d.wireless(ctx, env.Wireless)
	}

	if err := snap.Validate(); err != nil {
		return domain.ChannelSnapshot{}, "", err
	}
	return snap, env.MessageID, nil
}

func (d *Decoder) wireless(ctx context.Context, w *wirelessEnvelope) *domain.WirelessFeatures {
	features := &domain.WirelessFeatures{
		SSID:     w.SSID,
		BSSID:    strings.ToUpper(w.BSSID),
		Security: domain.ParseSecurityClass(w.Security),
		Band:     normalizeBand(w.Band),
		Channel:  w.Channel,
		RSSI:     w.RSSI,
	}

	source := w.VendorOUI
	if source == "" {
		source = w.BSSID
	}
	if prefix, err := fingerprint.ParsePrefix(source); err == nil {
		features.VendorOUI = prefix
	}

	if d.vendors != nil && features.VendorOUI != "" {
		lookupCtx, cancel := context.WithTimeout(ctx, vendorLookupTimeout)
		defer cancel()
		vendor, err := d.vendors.LookupVendor(lookupCtx, features.VendorOUI)
		switch {
		case err == nil:
			features.VendorName = vendor
		case errors.Is(err, fingerprint.ErrVendorNotFound), errors.Is(err, fingerprint.ErrLocallyAdministered):
		default:
			d.logger.Debug("vendor lookup failed", "oui", features.VendorOUI, "error", err)
		}
	}
	return features
}

// normalizeBand canonicalizes the band name. Unknown values pass through
// unchanged so the scorer can still compare them literally.
func normalizeBand(b string) string {
	band, err := domain.ParseBand(b)
	if err != nil {
		return b
	}
	return string(band)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, domain.ErrInvalidDeviceID):
		return "device_id"
	case errors.Is(err, domain.ErrInvalidSnapshot):
		return "shape"
	}
	return "sink"
}
