package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// SQLiteAdapter implements ports.Storage using GORM and SQLite.
type SQLiteAdapter struct {
	db *gorm.DB
}

// EventModel is the current view of a threat event.
type EventModel struct {
	ID          string `gorm:"primaryKey"`
	DeviceID    string `gorm:"index"`
	Channel     string
	Severity    string
	Description string
	Evidence    string    // JSON encoded []string
	Status      string    `gorm:"index"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
	ResolvedBy  string
	Narrative   string
}

func (EventModel) TableName() string { return "threat_events" }

// RevisionModel is one append-only lifecycle step of an event.
type RevisionModel struct {
	EventID   string `gorm:"primaryKey"`
	Seq       int    `gorm:"primaryKey"`
	Kind      string
	Severity  string
	Status    string
	Actor     string
	Note      string
	Timestamp time.Time
}

func (RevisionModel) TableName() string { return "event_revisions" }

// DecisionModel stores one policy decision. Seq preserves append order,
// which the hash chain depends on.
type DecisionModel struct {
	Seq                uint   `gorm:"primaryKey;autoIncrement"`
	ID                 string `gorm:"uniqueIndex"`
	DeviceID           string `gorm:"index"`
	GlobalRisk         float64
	RawRisk            float64
	PreviousState      string
	State              string
	Actions            string // JSON encoded []ActionType
	Rationale          string `gorm:"index"`
	Implicated         string // JSON encoded []Channel
	Actor              string
	Degraded           bool
	DurabilityDegraded bool
	Annotations        string    // JSON encoded []Annotation
	Timestamp          time.Time `gorm:"index"`
	PrevHash           string
	Hash               string
}

func (DecisionModel) TableName() string { return "policy_decisions" }

// ProfileModel stores a device reference profile.
type ProfileModel struct {
	DeviceID string `gorm:"primaryKey"`

	// Trusted wireless identity, empty until enrolment
	HasTrusted        bool
	TrustedSSID       string
	TrustedVendorOUI  string
	TrustedVendorName string
	TrustedSecurity   string
	TrustedBand       string
	TrustedEnrolledAt time.Time

	RTTMillis  float64
	RTTSamples int
	Traffic    string // JSON encoded TrafficBaseline
	Confidence float64
	UpdatedAt  time.Time
}

func (ProfileModel) TableName() string { return "device_profiles" }

// NewSQLiteAdapter initializes the database, installs tracing and migrates schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, &DatabaseError{Op: "instrument", Err: err}
	}
	return newAdapter(db)
}

func newAdapter(db *gorm.DB) (*SQLiteAdapter, error) {
	if err := db.AutoMigrate(&EventModel{}, &RevisionModel{}, &DecisionModel{}, &ProfileModel{}); err != nil {
		return nil, &DatabaseError{Op: "migrate", Err: err}
	}
	db.Exec("CREATE INDEX IF NOT EXISTS idx_events_device_status ON threat_events(device_id, status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_decisions_device_ts ON policy_decisions(device_id, timestamp)")
	return &SQLiteAdapter{db: db}, nil
}

// SaveEvent inserts or replaces the current view of an event.
func (a *SQLiteAdapter) SaveEvent(ctx context.Context, event domain.ThreatEvent) error {
	model := toEventModel(event)
	if err := a.db.WithContext(ctx).Save(&model).Error; err != nil {
		return writeError("save event", err)
	}
	return nil
}

// AppendRevision records a revision once. Replaying the same (event, seq) is a no-op.
func (a *SQLiteAdapter) AppendRevision(ctx context.Context, rev domain.EventRevision) error {
	model := toRevisionModel(rev)
	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return writeError("append revision", err)
	}
	return nil
}

// ListEvents returns events matching the filter, oldest first.
func (a *SQLiteAdapter) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.ThreatEvent, error) {
	query := a.db.WithContext(ctx).Order("created_at ASC")
	if filter.DeviceID != "" {
		query = query.Where("device_id = ?", filter.DeviceID)
	}
	if filter.Channel != "" {
		query = query.Where("channel = ?", string(filter.Channel))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at <= ?", filter.Until)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var models []EventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, &DatabaseError{Op: "list events", Err: err}
	}
	events := make([]domain.ThreatEvent, len(models))
	for i, m := range models {
		events[i] = toEvent(m)
	}
	return events, nil
}

// ListRevisions returns the history of one event in sequence order.
func (a *SQLiteAdapter) ListRevisions(ctx context.Context, eventID string) ([]domain.EventRevision, error) {
	var models []RevisionModel
	err := a.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("seq ASC").
		Find(&models).Error
	if err != nil {
		return nil, &DatabaseError{Op: "list revisions", Err: err}
	}
	revs := make([]domain.EventRevision, len(models))
	for i, m := range models {
		revs[i] = toRevision(m)
	}
	return revs, nil
}

// SaveDecision appends a decision. Saving a known id only refreshes its annotations,
// so the sealed fields stay as first written.
func (a *SQLiteAdapter) SaveDecision(ctx context.Context, decision domain.PolicyDecision) error {
	model := toDecisionModel(decision)
	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"annotations"}),
		}).
		Create(&model).Error
	if err != nil {
		return writeError("save decision", err)
	}
	return nil
}

// ListDecisions returns decisions matching the filter in append order.
func (a *SQLiteAdapter) ListDecisions(ctx context.Context, filter domain.DecisionFilter) ([]domain.PolicyDecision, error) {
	query := a.db.WithContext(ctx).Order("seq ASC")
	if filter.DeviceID != "" {
		query = query.Where("device_id = ?", filter.DeviceID)
	}
	if filter.Rationale != "" {
		query = query.Where("rationale = ?", filter.Rationale)
	}
	if !filter.Since.IsZero() {
		query = query.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("timestamp <= ?", filter.Until)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var models []DecisionModel
	if err := query.Find(&models).Error; err != nil {
		return nil, &DatabaseError{Op: "list decisions", Err: err}
	}
	out := make([]domain.PolicyDecision, len(models))
	for i, m := range models {
		out[i] = toDecision(m)
	}
	return out, nil
}

// SaveProfile inserts or replaces a device profile.
func (a *SQLiteAdapter) SaveProfile(ctx context.Context, profile domain.DeviceProfile) error {
	model := toProfileModel(profile)
	if err := a.db.WithContext(ctx).Save(&model).Error; err != nil {
		return writeError("save profile", err)
	}
	return nil
}

// ListProfiles returns every stored profile.
func (a *SQLiteAdapter) ListProfiles(ctx context.Context) ([]domain.DeviceProfile, error) {
	var models []ProfileModel
	if err := a.db.WithContext(ctx).Order("device_id ASC").Find(&models).Error; err != nil {
		return nil, &DatabaseError{Op: "list profiles", Err: err}
	}
	out := make([]domain.DeviceProfile, len(models))
	for i, m := range models {
		out[i] = toProfile(m)
	}
	return out, nil
}

// Ping checks that the database still answers.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return &DatabaseError{Op: "ping", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &DatabaseError{Op: "ping", Err: err}
	}
	return nil
}

func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func writeError(op string, err error) error {
	return &DatabaseError{Op: op, Err: fmt.Errorf("%w: %w", domain.ErrStoreWrite, err)}
}

// DatabaseError wraps a failed storage operation with its name.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Ensure interface compliance
var _ ports.Storage = (*SQLiteAdapter)(nil)
