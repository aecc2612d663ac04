// Package audit keeps the append-only, hash-chained log of policy decisions.
package audit

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
	"golang.org/x/crypto/blake2b"
)

// ErrChainBroken is returned by Verify when a decision no longer matches its hash.
var ErrChainBroken = errors.New("decision chain broken")

// DecisionLog records every policy decision. Decisions are never rewritten;
// annotations are appended to them and are not part of the chained hash.
type DecisionLog struct {
	mu        sync.RWMutex
	decisions []*domain.PolicyDecision
	index     map[string]int
	lastHash  string

	repo  ports.DecisionRepository
	queue ports.WriteQueue
}

// NewDecisionLog creates a log. repo and queue may be nil for a memory-only log.
func NewDecisionLog(repo ports.DecisionRepository, queue ports.WriteQueue) *DecisionLog {
	return &DecisionLog{
		index: make(map[string]int),
		repo:  repo,
		queue: queue,
	}
}

// Load restores the persisted chain. A broken chain is logged, not rejected.
func (l *DecisionLog) Load(ctx context.Context) error {
	if l.repo == nil {
		return nil
	}
	decisions, err := l.repo.ListDecisions(ctx, domain.DecisionFilter{})
	if err != nil {
		return fmt.Errorf("failed to load decisions: %w", err)
	}

	l.mu.Lock()
	for i := range decisions {
		d := decisions[i].Clone()
		l.index[d.ID] = len(l.decisions)
		l.decisions = append(l.decisions, &d)
		l.lastHash = d.Hash
	}
	l.mu.Unlock()

	if err := l.Verify(); err != nil {
		slog.Error("decision audit chain failed verification", "error", err)
	}
	return nil
}

// Append seals a decision into the chain and schedules it for persistence.
func (l *DecisionLog) Append(d domain.PolicyDecision) domain.PolicyDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	if l.queue != nil {
		d.DurabilityDegraded = d.DurabilityDegraded || l.queue.Degraded()
	}
	d.PrevHash = l.lastHash
	d.Hash = digest(d)
	l.lastHash = d.Hash

	stored := d.Clone()
	l.index[d.ID] = len(l.decisions)
	l.decisions = append(l.decisions, &stored)
	l.persistLocked(&stored)
	return d.Clone()
}

// Annotate attaches a late fact, such as a dispatch outcome, to a recorded decision.
func (l *DecisionLog) Annotate(decisionID string, a domain.Annotation) (domain.PolicyDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[decisionID]
	if !ok {
		return domain.PolicyDecision{}, domain.ErrDecisionNotFound
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	d := l.decisions[i]
	d.Annotations = append(d.Annotations, a)
	l.persistLocked(d)
	return d.Clone(), nil
}

// Get returns one decision.
func (l *DecisionLog) Get(id string) (domain.PolicyDecision, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return domain.PolicyDecision{}, domain.ErrDecisionNotFound
	}
	return l.decisions[i].Clone(), nil
}

// Query returns decisions matching the filter in append order.
func (l *DecisionLog) Query(f domain.DecisionFilter) []domain.PolicyDecision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.PolicyDecision
	for _, d := range l.decisions {
		if !f.Matches(*d) {
			continue
		}
		out = append(out, d.Clone())
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Latest returns the most recent decision for a device.
func (l *DecisionLog) Latest(deviceID string) (domain.PolicyDecision, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.decisions) - 1; i >= 0; i-- {
		if l.decisions[i].DeviceID == deviceID {
			return l.decisions[i].Clone(), true
		}
	}
	return domain.PolicyDecision{}, false
}

// Len returns the number of recorded decisions.
func (l *DecisionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.decisions)
}

// Verify recomputes the chain and reports the first decision that does not match.
func (l *DecisionLog) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	prev := ""
	for i, d := range l.decisions {
		if d.PrevHash != prev {
			return fmt.Errorf("%w: decision %d (%s) links to %q, want %q", ErrChainBroken, i, d.ID, d.PrevHash, prev)
		}
		if got := digest(*d); got != d.Hash {
			return fmt.Errorf("%w: decision %d (%s) content changed", ErrChainBroken, i, d.ID)
		}
		prev = d.Hash
	}
	return nil
}

func (l *DecisionLog) persistLocked(d *domain.PolicyDecision) {
	if l.repo == nil || l.queue == nil {
		return
	}
	snapshot := d.Clone()
	repo := l.repo
	l.queue.Enqueue("decision", func(ctx context.Context) error {
		return repo.SaveDecision(ctx, snapshot)
	})
}

// sealed is the hashed projection of a decision.
type sealed struct {
	ID                 string              `json:"id"`
	DeviceID           string              `json:"device_id"`
	GlobalRisk         float64             `json:"global_risk"`
	RawRisk            float64             `json:"raw_risk"`
	PreviousState      domain.PolicyState  `json:"previous_state"`
	State              domain.PolicyState  `json:"state"`
	Actions            []domain.ActionType `json:"actions"`
	Rationale          string              `json:"rationale"`
	Implicated         []domain.Channel    `json:"implicated"`
	Actor              string              `json:"actor"`
	Degraded           bool                `json:"degraded"`
	DurabilityDegraded bool                `json:"durability_degraded"`
	Timestamp          string              `json:"timestamp"`
	PrevHash           string              `json:"prev_hash"`
}

// digest hashes the sealed projection. Empty and nil slices hash the same so a
// decision read back from storage still verifies.
func digest(d domain.PolicyDecision) string {
	if len(d.Actions) == 0 {
		d.Actions = nil
	}
	if len(d.Implicated) == 0 {
		d.Implicated = nil
	}
	payload, _ := json.Marshal(sealed{
		ID:                 d.ID,
		DeviceID:           d.DeviceID,
		GlobalRisk:         d.GlobalRisk,
		RawRisk:            d.RawRisk,
		PreviousState:      d.PreviousState,
		State:              d.State,
		Actions:            d.Actions,
		Rationale:          d.Rationale,
		Implicated:         d.Implicated,
		Actor:              d.Actor,
		Degraded:           d.Degraded,
		DurabilityDegraded: d.DurabilityDegraded,
		Timestamp:          d.Timestamp.UTC().Format(time.RFC3339Nano),
		PrevHash:           d.PrevHash,
	})
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
