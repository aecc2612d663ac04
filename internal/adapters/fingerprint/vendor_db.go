package fingerprint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// VendorDB reads the IEEE OUI registry from a SQLite file.
type VendorDB struct {
	db         *sql.DB
	mu         sync.RWMutex
	closed     bool
	lookupStmt *sql.Stmt
}

// OUIEntry represents a single OUI registry entry
type OUIEntry struct {
	Prefix      string
	Vendor      string
	VendorShort string
	LastUpdated time.Time
}

// RegistryStats summarizes the registry contents.
type RegistryStats struct {
	TotalEntries int
	LastUpdated  string
}

// OpenVendorDB opens (and if needed creates) the registry at path.
func OpenVendorDB(path string) (*VendorDB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &DatabaseError{Op: "ping", Err: err}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS oui_registry (
		prefix TEXT PRIMARY KEY,
		vendor TEXT NOT NULL,
		vendor_short TEXT,
		last_updated INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_vendor_short ON oui_registry(vendor_short);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &DatabaseError{Op: "initialize_schema", Err: err}
	}

	stmt, err := db.Prepare("SELECT COALESCE(NULLIF(vendor_short, ''), vendor) FROM oui_registry WHERE prefix = ?")
	if err != nil {
		db.Close()
		return nil, &DatabaseError{Op: "prepare_statement", Err: err}
	}
	return &VendorDB{db: db, lookupStmt: stmt}, nil
}

// Vendor returns the short vendor name registered for a normalized prefix.
func (v *VendorDB) Vendor(ctx context.Context, prefix string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return "", ErrRegistryClosed
	}

	var vendor string
	err := v.lookupStmt.QueryRowContext(ctx, prefix).Scan(&vendor)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrVendorNotFound
	case err != nil:
		return "", &DatabaseError{Op: "lookup", Err: err}
	}
	return vendor, nil
}

// BulkInsert writes entries in one transaction, replacing existing prefixes.
func (v *VendorDB) BulkInsert(ctx context.Context, entries []OUIEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrRegistryClosed
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return &DatabaseError{Op: "begin_transaction", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO oui_registry (prefix, vendor, vendor_short, last_updated)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return &DatabaseError{Op: "prepare_bulk_insert", Err: err}
	}
	defer stmt.Close()

	for _, e := range entries {
		prefix, err := ParsePrefix(e.Prefix)
		if err != nil {
			return fmt.Errorf("entry %q: %w", e.Prefix, err)
		}
		if _, err := stmt.ExecContext(ctx, prefix, e.Vendor, e.VendorShort, e.LastUpdated.Unix()); err != nil {
			return &DatabaseError{Op: "bulk_insert_entry", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &DatabaseError{Op: "commit_transaction", Err: err}
	}
	return nil
}

// Stats counts entries and reports the newest update date.
func (v *VendorDB) Stats(ctx context.Context) (RegistryStats, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return RegistryStats{}, ErrRegistryClosed
	}

	var count int
	var last int64
	err := v.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MAX(last_updated), 0) FROM oui_registry",
	).Scan(&count, &last)
	if err != nil {
		return RegistryStats{}, &DatabaseError{Op: "get_stats", Err: err}
	}
	return RegistryStats{
		TotalEntries: count,
		LastUpdated:  time.Unix(last, 0).UTC().Format("2006-01-02"),
	}, nil
}

func (v *VendorDB) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	if v.lookupStmt != nil {
		v.lookupStmt.Close()
	}
	return v.db.Close()
}
