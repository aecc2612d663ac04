// Package threats owns the lifecycle of threat events.
package threats

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
)

type activeKey struct {
	deviceID string
	channel  domain.Channel
}

// Store keeps threat events in memory and mirrors every mutation to the repository
// through the write queue. Events are never deleted.
type Store struct {
	mu        sync.RWMutex
	events    map[string]*domain.ThreatEvent
	order     []string
	active    map[activeKey]string
	revisions map[string][]domain.EventRevision
	lastAt    time.Time

	repo  ports.EventRepository
	queue ports.WriteQueue
	now   func() time.Time
}

// NewStore creates an event store. repo and queue may be nil for a memory-only store.
func NewStore(repo ports.EventRepository, queue ports.WriteQueue) *Store {
	return &Store{
		events:    make(map[string]*domain.ThreatEvent),
		active:    make(map[activeKey]string),
		revisions: make(map[string][]domain.EventRevision),
		repo:      repo,
		queue:     queue,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Load restores events and their history from the repository.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	events, err := s.repo.ListEvents(ctx, domain.EventFilter{})
	if err != nil {
		return fmt.Errorf("failed to load threat events: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range events {
		ev := events[i].Clone()
		revs, err := s.repo.ListRevisions(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("failed to load history of event %s: %w", ev.ID, err)
		}
		s.events[ev.ID] = &ev
		s.order = append(s.order, ev.ID)
		s.revisions[ev.ID] = revs
		if ev.Status.IsOpen() {
			s.active[activeKey{ev.DeviceID, ev.Channel}] = ev.ID
		}
		if ev.CreatedAt.After(s.lastAt) {
			s.lastAt = ev.CreatedAt
		}
	}
	sort.SliceStable(s.order, func(i, j int) bool {
		return s.events[s.order[i]].CreatedAt.Before(s.events[s.order[j]].CreatedAt)
	})
	return nil
}

// Raise creates an event for (device, channel) or updates the open one.
// Severity never decreases on update. created reports whether a new event was made.
func (s *Store) Raise(deviceID string, ch domain.Channel, sev domain.Severity, description string, evidence []string) (domain.ThreatEvent, bool, error) {
	if !domain.IsValidDeviceID(deviceID) {
		return domain.ThreatEvent{}, false, domain.ErrInvalidDeviceID
	}
	if !ch.Valid() {
		return domain.ThreatEvent{}, false, fmt.Errorf("%w: unknown channel %q", domain.ErrInvalidSnapshot, ch)
	}
	if sev.Rank() == 0 {
		return domain.ThreatEvent{}, false, domain.ErrInvalidSeverity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := activeKey{deviceID, ch}
	if id, ok := s.active[key]; ok {
		ev := s.events[id]
		upgrade := sev.Rank() > ev.Severity.Rank()
		if !upgrade && ev.Description == description && slices.Equal(ev.Evidence, evidence) {
			return ev.Clone(), false, nil
		}
		if upgrade {
			ev.Severity = sev
		}
		ev.Description = description
		ev.Evidence = append([]string(nil), evidence...)
		ev.UpdatedAt = now
		s.recordLocked(ev, domain.RevisionUpdated, "policy", "", now)
		return ev.Clone(), false, nil
	}

	created := now
	if !created.After(s.lastAt) {
		created = s.lastAt.Add(time.Nanosecond)
	}
	s.lastAt = created

	ev := &domain.ThreatEvent{
		ID:          uuid.New().String(),
		DeviceID:    deviceID,
		Channel:     ch,
		Severity:    sev,
		Description: description,
		Evidence:    append([]string(nil), evidence...),
		Status:      domain.EventActive,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	s.events[ev.ID] = ev
	s.order = append(s.order, ev.ID)
	s.active[key] = ev.ID
	s.recordLocked(ev, domain.RevisionRaised, "policy", "", created)

	slog.Info("threat event raised", "id", ev.ID, "device", deviceID, "channel", ch, "severity", sev)
	return ev.Clone(), true, nil
}

// Resolve closes an event. Resolution is irreversible.
func (s *Store) Resolve(id, actor, note string) (domain.ThreatEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return domain.ThreatEvent{}, domain.ErrEventNotFound
	}
	if !ev.Status.IsOpen() {
		return ev.Clone(), domain.ErrEventResolved
	}
	s.resolveLocked(ev, actor, note)
	return ev.Clone(), nil
}

// ResolveOpen closes open events of a device except those on keep channels and,
// with keepCritical, those of CRITICAL severity.
func (s *Store) ResolveOpen(deviceID string, keep []domain.Channel, keepCritical bool, actor, note string) []domain.ThreatEvent {
	kept := make(map[domain.Channel]bool, len(keep))
	for _, ch := range keep {
		kept[ch] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ThreatEvent
	for _, id := range s.order {
		ev := s.events[id]
		if ev.DeviceID != deviceID || !ev.Status.IsOpen() || kept[ev.Channel] {
			continue
		}
		if keepCritical && ev.Severity == domain.SeverityCritical {
			continue
		}
		s.resolveLocked(ev, actor, note)
		out = append(out, ev.Clone())
	}
	return out
}

func (s *Store) resolveLocked(ev *domain.ThreatEvent, actor, note string) {
	now := s.now()
	ev.Status = domain.EventResolved
	ev.ResolvedAt = &now
	ev.ResolvedBy = actor
	ev.UpdatedAt = now
	delete(s.active, activeKey{ev.DeviceID, ev.Channel})
	s.recordLocked(ev, domain.RevisionResolved, actor, note, now)
	slog.Info("threat event resolved", "id", ev.ID, "device", ev.DeviceID, "actor", actor)
}

// MarkAnalyzing moves an active event to analyzing while enrichment runs.
func (s *Store) MarkAnalyzing(id, actor string) (domain.ThreatEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return domain.ThreatEvent{}, domain.ErrEventNotFound
	}
	if !ev.Status.IsOpen() {
		return ev.Clone(), domain.ErrEventResolved
	}
	if ev.Status == domain.EventAnalyzing {
		return ev.Clone(), nil
	}
	now := s.now()
	ev.Status = domain.EventAnalyzing
	ev.UpdatedAt = now
	s.recordLocked(ev, domain.RevisionAnalyzing, actor, "", now)
	return ev.Clone(), nil
}

// Reactivate returns an analyzing event to active, for example when enrichment failed.
func (s *Store) Reactivate(id, actor, note string) (domain.ThreatEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return domain.ThreatEvent{}, domain.ErrEventNotFound
	}
	if !ev.Status.IsOpen() {
		return ev.Clone(), domain.ErrEventResolved
	}
	if ev.Status == domain.EventActive {
		return ev.Clone(), nil
	}
	now := s.now()
	ev.Status = domain.EventActive
	ev.UpdatedAt = now
	s.recordLocked(ev, domain.RevisionUpdated, actor, note, now)
	return ev.Clone(), nil
}

// AttachNarrative stores an enrichment text. Resolved events keep their narrative as is.
func (s *Store) AttachNarrative(id, narrative string) (domain.ThreatEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return domain.ThreatEvent{}, domain.ErrEventNotFound
	}
	if !ev.Status.IsOpen() {
		return ev.Clone(), domain.ErrEventResolved
	}
	now := s.now()
	ev.Narrative = narrative
	ev.UpdatedAt = now
	s.recordLocked(ev, domain.RevisionNarrative, "explainer", "", now)
	return ev.Clone(), nil
}

// Get returns one event.
func (s *Store) Get(id string) (domain.ThreatEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return domain.ThreatEvent{}, domain.ErrEventNotFound
	}
	return ev.Clone(), nil
}

// ListActive returns open events, of one device or of all when deviceID is empty.
func (s *Store) ListActive(deviceID string) []domain.ThreatEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ThreatEvent
	for _, id := range s.order {
		ev := s.events[id]
		if ev.Status.IsOpen() && (deviceID == "" || ev.DeviceID == deviceID) {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// Query returns events matching the filter, oldest first.
func (s *Store) Query(f domain.EventFilter) []domain.ThreatEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ThreatEvent
	for _, id := range s.order {
		ev := s.events[id]
		if !f.Matches(*ev) {
			continue
		}
		out = append(out, ev.Clone())
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Revisions returns the append-only history of an event.
func (s *Store) Revisions(id string) ([]domain.EventRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.events[id]; !ok {
		return nil, domain.ErrEventNotFound
	}
	return append([]domain.EventRevision(nil), s.revisions[id]...), nil
}

func (s *Store) recordLocked(ev *domain.ThreatEvent, kind domain.RevisionKind, actor, note string, at time.Time) {
	rev := domain.EventRevision{
		EventID:   ev.ID,
		Seq:       len(s.revisions[ev.ID]) + 1,
		Kind:      kind,
		Severity:  ev.Severity,
		Status:    ev.Status,
		Actor:     actor,
		Note:      note,
		Timestamp: at,
	}
	s.revisions[ev.ID] = append(s.revisions[ev.ID], rev)

	if s.repo == nil || s.queue == nil {
		return
	}
	snapshot := ev.Clone()
	repo := s.repo
	s.queue.Enqueue("event", func(ctx context.Context) error {
		if err := repo.SaveEvent(ctx, snapshot); err != nil {
			return err
		}
		return repo.AppendRevision(ctx, rev)
	})
}
