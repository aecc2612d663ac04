package storage

import (
	"encoding/json"
	"log/slog"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

func toEventModel(e domain.ThreatEvent) EventModel {
	return EventModel{
		ID:          e.ID,
		DeviceID:    e.DeviceID,
		Channel:     string(e.Channel),
		Severity:    string(e.Severity),
		Description: e.Description,
		Evidence:    encodeJSON(e.Evidence),
		Status:      string(e.Status),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		ResolvedAt:  e.ResolvedAt,
		ResolvedBy:  e.ResolvedBy,
		Narrative:   e.Narrative,
	}
}

func toEvent(m EventModel) domain.ThreatEvent {
	ev := domain.ThreatEvent{
		ID:          m.ID,
		DeviceID:    m.DeviceID,
		Channel:     domain.Channel(m.Channel),
		Severity:    domain.Severity(m.Severity),
		Description: m.Description,
		Status:      domain.EventStatus(m.Status),
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
		ResolvedBy:  m.ResolvedBy,
		Narrative:   m.Narrative,
	}
	decodeJSON(m.Evidence, &ev.Evidence)
	if m.ResolvedAt != nil {
		t := m.ResolvedAt.UTC()
		ev.ResolvedAt = &t
	}
	return ev
}

func toRevisionModel(r domain.EventRevision) RevisionModel {
	return RevisionModel{
		EventID:   r.EventID,
		Seq:       r.Seq,
		Kind:      string(r.Kind),
		Severity:  string(r.Severity),
		Status:    string(r.Status),
		Actor:     r.Actor,
		Note:      r.Note,
		Timestamp: r.Timestamp,
	}
}

func toRevision(m RevisionModel) domain.EventRevision {
	return domain.EventRevision{
		EventID:   m.EventID,
		Seq:       m.Seq,
		Kind:      domain.RevisionKind(m.Kind),
		Severity:  domain.Severity(m.Severity),
		Status:    domain.EventStatus(m.Status),
		Actor:     m.Actor,
		Note:      m.Note,
		Timestamp: m.Timestamp.UTC(),
	}
}

func toDecisionModel(d domain.PolicyDecision) DecisionModel {
	return DecisionModel{
		ID:                 d.ID,
		DeviceID:           d.DeviceID,
		GlobalRisk:         d.GlobalRisk,
		RawRisk:            d.RawRisk,
		PreviousState:      string(d.PreviousState),
		State:              string(d.State),
		Actions:            encodeJSON(d.Actions),
		Rationale:          d.Rationale,
		Implicated:         encodeJSON(d.Implicated),
		Actor:              d.Actor,
		Degraded:           d.Degraded,
		DurabilityDegraded: d.DurabilityDegraded,
		Annotations:        encodeJSON(d.Annotations),
		Timestamp:          d.Timestamp,
		PrevHash:           d.PrevHash,
		Hash:               d.Hash,
	}
}

func toDecision(m DecisionModel) domain.PolicyDecision {
	d := domain.PolicyDecision{
		ID:                 m.ID,
		DeviceID:           m.DeviceID,
		GlobalRisk:         m.GlobalRisk,
		RawRisk:            m.RawRisk,
		PreviousState:      domain.PolicyState(m.PreviousState),
		State:              domain.PolicyState(m.State),
		Rationale:          m.Rationale,
		Actor:              m.Actor,
		Degraded:           m.Degraded,
		DurabilityDegraded: m.DurabilityDegraded,
		Timestamp:          m.Timestamp.UTC(),
		PrevHash:           m.PrevHash,
		Hash:               m.Hash,
	}
	decodeJSON(m.Actions, &d.Actions)
	decodeJSON(m.Implicated, &d.Implicated)
	decodeJSON(m.Annotations, &d.Annotations)
	return d
}

func toProfileModel(p domain.DeviceProfile) ProfileModel {
	m := ProfileModel{
		DeviceID:   p.DeviceID,
		RTTMillis:  p.Transport.RTTMillis,
		RTTSamples: p.Transport.Samples,
		Traffic:    encodeJSON(p.Traffic),
		Confidence: p.Confidence,
		UpdatedAt:  p.UpdatedAt,
	}
	if tn := p.TrustedNetwork; tn != nil {
		m.HasTrusted = true
		m.TrustedSSID = tn.SSID
		m.TrustedVendorOUI = tn.VendorOUI
		m.TrustedVendorName = tn.VendorName
		m.TrustedSecurity = string(tn.Security)
		m.TrustedBand = tn.Band
		m.TrustedEnrolledAt = tn.EnrolledAt
	}
	return m
}

func toProfile(m ProfileModel) domain.DeviceProfile {
	p := domain.DeviceProfile{
		DeviceID: m.DeviceID,
		Transport: domain.TransportBaseline{
			RTTMillis: m.RTTMillis,
			Samples:   m.RTTSamples,
		},
		Confidence: m.Confidence,
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
	decodeJSON(m.Traffic, &p.Traffic)
	if m.HasTrusted {
		p.TrustedNetwork = &domain.TrustedNetwork{
			SSID:       m.TrustedSSID,
			VendorOUI:  m.TrustedVendorOUI,
			VendorName: m.TrustedVendorName,
			Security:   domain.SecurityClass(m.TrustedSecurity),
			Band:       m.TrustedBand,
			EnrolledAt: m.TrustedEnrolledAt.UTC(),
		}
	}
	return p
}

// encodeJSON stores nil and empty collections as the empty string.
func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode column", "error", err)
		return ""
	}
	switch string(b) {
	case "null", "[]", "{}":
		return ""
	}
	return string(b)
}

func decodeJSON(s string, out any) {
	if s == "" {
		return
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		slog.Warn("failed to decode column", "error", err)
	}
}
