// Package correlator runs the per-device evaluation pipeline: scoring, fusion,
// policy and event lifecycle, plus the manual control surface.
package correlator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
	"github.com/lcalzada-xor/mids/internal/core/services/aggregator"
	"github.com/lcalzada-xor/mids/internal/core/services/audit"
	"github.com/lcalzada-xor/mids/internal/core/services/policy"
	"github.com/lcalzada-xor/mids/internal/core/services/profile"
	"github.com/lcalzada-xor/mids/internal/core/services/scoring"
	"github.com/lcalzada-xor/mids/internal/core/services/threats"
)

// Runtime holds timing settings of the pipeline.
type Runtime struct {
	TickInterval        time.Duration `yaml:"tick_interval"`
	ScorerTimeout       time.Duration `yaml:"scorer_timeout"`
	DispatchTimeout     time.Duration `yaml:"dispatch_timeout"`
	ExplainTimeout      time.Duration `yaml:"explain_timeout"`
	AutoExplainCritical bool          `yaml:"auto_explain_critical"`
}

// DefaultRuntime returns a 5s tick with a 250ms scorer budget.
func DefaultRuntime() Runtime {
	return Runtime{
		TickInterval:        5 * time.Second,
		ScorerTimeout:       250 * time.Millisecond,
		DispatchTimeout:     5 * time.Second,
		ExplainTimeout:      10 * time.Second,
		AutoExplainCritical: true,
	}
}

// Settings is the complete tunable configuration of the engine.
type Settings struct {
	Scoring    scoring.Params
	Aggregator aggregator.Params
	Policy     policy.Params
	Profile    profile.Params
	Runtime    Runtime
}

// DefaultSettings combines the defaults of every stage.
func DefaultSettings() Settings {
	return Settings{
		Scoring:    scoring.DefaultParams(),
		Aggregator: aggregator.DefaultParams(),
		Policy:     policy.DefaultParams(),
		Profile:    profile.DefaultParams(),
		Runtime:    DefaultRuntime(),
	}
}

// Deps are the collaborators of the engine. Only Dispatcher is required.
type Deps struct {
	Profiles   *profile.Store
	Events     *threats.Store
	Decisions  *audit.DecisionLog
	Dispatcher ports.ActionDispatcher
	Publisher  ports.EventPublisher
	Explainer  ports.Explainer
	RiskSink   ports.RiskSink
}

// device is the single-writer unit: every mutation of one device runs under mu.
type device struct {
	mu       sync.Mutex
	id       string
	machine  *policy.Machine
	pending  map[domain.Channel]domain.ChannelSnapshot
	lastApps *domain.AppFeatures
	lastSeen time.Time
	running  bool
}

// Engine correlates channel snapshots into decisions and protective actions.
type Engine struct {
	mu       sync.RWMutex
	devices  map[string]*device
	settings Settings
	scorers  map[domain.Channel]ports.VectorScorer
	apps     *scoring.AppRiskScorer

	agg        *aggregator.Aggregator
	profiles   *profile.Store
	events     *threats.Store
	decisions  *audit.DecisionLog
	dispatches *dispatchTracker
	notify     *notifier

	dispatcher ports.ActionDispatcher
	explainer  ports.Explainer
	riskSink   ports.RiskSink

	runCtx  context.Context
	started bool
	wg      sync.WaitGroup
	now     func() time.Time
}

var _ ports.CorrelationService = (*Engine)(nil)

// NewEngine wires the pipeline. Missing stores are created in memory.
func NewEngine(s Settings, deps Deps) *Engine {
	if deps.Profiles == nil {
		deps.Profiles = profile.NewStore(s.Profile, nil, nil)
	}
	if deps.Events == nil {
		deps.Events = threats.NewStore(nil, nil)
	}
	if deps.Decisions == nil {
		deps.Decisions = audit.NewDecisionLog(nil, nil)
	}

	e := &Engine{
		devices:    make(map[string]*device),
		agg:        aggregator.New(s.Aggregator),
		profiles:   deps.Profiles,
		events:     deps.Events,
		decisions:  deps.Decisions,
		dispatches: newDispatchTracker(),
		notify:     newNotifier(deps.Publisher, 1024),
		dispatcher: deps.Dispatcher,
		explainer:  deps.Explainer,
		riskSink:   deps.RiskSink,
		runCtx:     context.Background(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	e.applyLocked(s)
	return e
}

// SetClock overrides the time source of the engine and its stores.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
	e.events.SetClock(now)
}

func (e *Engine) clock() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.now()
}

// ApplySettings hot-swaps thresholds and weights. Running ticks finish with the old values.
func (e *Engine) ApplySettings(s Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyLocked(s)
	slog.Info("correlation settings applied",
		"tick_interval", s.Runtime.TickInterval,
		"defense_threshold", s.Policy.DefenseThreshold,
		"dwell_ticks", s.Policy.DwellTicks)
}

func (e *Engine) applyLocked(s Settings) {
	e.settings = s
	e.scorers = make(map[domain.Channel]ports.VectorScorer, len(domain.AllChannels))
	for _, sc := range scoring.NewScorers(s.Scoring) {
		e.scorers[sc.Channel()] = sc
	}
	e.apps = scoring.NewAppRiskScorer(s.Scoring.AppRisk)
	e.agg.SetParams(s.Aggregator)
	e.profiles.SetParams(s.Profile)
}

// Settings returns the active settings.
func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// Start restores known devices and begins their tick loops. It returns immediately.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.runCtx = ctx
	e.started = true
	e.mu.Unlock()

	e.notify.start(ctx)

	for _, id := range e.profiles.Devices() {
		dev := e.register(id)
		e.startLoop(ctx, dev)
	}
	slog.Info("correlation engine started", "devices", len(e.Devices()))
}

// Wait blocks until in-flight dispatch, explain and sink calls have returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// register returns the device entry, creating it and restoring its last state on first sight.
func (e *Engine) register(id string) *device {
	e.mu.RLock()
	dev, ok := e.devices[id]
	e.mu.RUnlock()
	if ok {
		return dev
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if dev, ok := e.devices[id]; ok {
		return dev
	}
	machine := policy.NewMachine()
	if last, ok := e.decisions.Latest(id); ok {
		machine = policy.Restore(last.State)
	}
	dev = &device{
		id:      id,
		machine: machine,
		pending: make(map[domain.Channel]domain.ChannelSnapshot),
	}
	e.devices[id] = dev
	return dev
}

func (e *Engine) lookup(id string) (*device, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	dev, ok := e.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDevice, id)
	}
	return dev, nil
}

func (e *Engine) startLoop(ctx context.Context, dev *device) {
	dev.mu.Lock()
	if dev.running {
		dev.mu.Unlock()
		return
	}
	dev.running = true
	dev.mu.Unlock()

	go e.loop(ctx, dev)
}

// loop ticks one device until ctx ends. A failing tick never stops the loop.
func (e *Engine) loop(ctx context.Context, dev *device) {
	interval := e.Settings().Runtime.TickInterval
	if interval <= 0 {
		interval = DefaultRuntime().TickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("device tick panicked", "device", dev.id, "panic", r)
				}
			}()
			if _, err := e.Tick(ctx, dev.id); err != nil {
				slog.Error("device tick failed", "device", dev.id, "error", err)
			}
		}()

		if next := e.Settings().Runtime.TickInterval; next > 0 && next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}
}

// Ingest queues a snapshot for the next tick of its device. Later snapshots of
// the same channel replace earlier ones.
func (e *Engine) Ingest(ctx context.Context, snap domain.ChannelSnapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if snap.ObservedAt.IsZero() {
		snap.ObservedAt = e.clock()
	}

	dev := e.register(snap.DeviceID)
	dev.mu.Lock()
	dev.pending[snap.Channel] = snap
	dev.lastSeen = e.clock()
	if snap.Apps != nil {
		apps := *snap.Apps
		dev.lastApps = &apps
	}
	dev.mu.Unlock()

	e.mu.RLock()
	runCtx, started := e.runCtx, e.started
	e.mu.RUnlock()
	if started {
		e.startLoop(runCtx, dev)
	}
	return nil
}

// Devices lists every device the engine knows, sorted.
func (e *Engine) Devices() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.devices))
	for id := range e.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// goTracked runs fn in a goroutine that Wait accounts for.
func (e *Engine) goTracked(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}
