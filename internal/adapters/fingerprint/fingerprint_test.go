package fingerprint

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrefix(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"a4:2b:b0:11:22:33", "A4:2B:B0", nil},
		{"A4-2B-B0-11-22-33", "A4:2B:B0", nil},
		{"a42b.b011.2233", "A4:2B:B0", nil},
		{"A42BB0112233", "A4:2B:B0", nil},
		{"a4:2b:b0", "A4:2B:B0", nil},
		{"", "", ErrEmptyMAC},
		{"zz:2b:b0", "", ErrInvalidMAC},
		{"a4:2b", "", ErrInvalidMAC},
		{"a4:2b:b0:11:22:zz", "", ErrInvalidMAC},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePrefix(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsLocallyAdministered(t *testing.T) {
	assert.True(t, IsLocallyAdministered("DA:A1:19"))
	assert.True(t, IsLocallyAdministered("02:00:00"))
	assert.False(t, IsLocallyAdministered("A4:2B:B0"))
	assert.False(t, IsLocallyAdministered(""))
}

type countingSource struct {
	StaticVendors
	calls int
}

func (c *countingSource) Vendor(ctx context.Context, prefix string) (string, error) {
	c.calls++
	return c.StaticVendors.Vendor(ctx, prefix)
}

type brokenSource struct{}

func (brokenSource) Vendor(context.Context, string) (string, error) {
	return "", &DatabaseError{Op: "lookup", Err: errors.New("disk I/O error")}
}

func (brokenSource) Close() error { return nil }

func TestResolver_CachesAndChains(t *testing.T) {
	primary := &countingSource{StaticVendors: StaticVendors{"B8:27:EB": "Raspberry Pi"}}
	r := NewResolver(8, brokenSource{}, primary, CommonVendors)
	ctx := context.Background()

	v, err := r.LookupVendor(ctx, "b8:27:eb:01:02:03")
	require.NoError(t, err)
	assert.Equal(t, "Raspberry Pi", v)

	v, err = r.LookupVendor(ctx, "B8-27-EB-99-99-99")
	require.NoError(t, err)
	assert.Equal(t, "Raspberry Pi", v)
	assert.Equal(t, 1, primary.calls)

	hits, misses := r.CacheStats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	v, err = r.LookupVendor(ctx, "A4:2B:B0")
	require.NoError(t, err)
	assert.Equal(t, "TP-Link", v)
}

func TestResolver_NotFound(t *testing.T) {
	r := NewResolver(8, CommonVendors)
	ctx := context.Background()

	_, err := r.LookupVendor(ctx, "12:34:56:00:00:01")
	assert.ErrorIs(t, err, ErrLocallyAdministered)

	_, err = r.LookupVendor(ctx, "10:34:56:00:00:01")
	assert.ErrorIs(t, err, ErrVendorNotFound)

	r = NewResolver(8, brokenSource{})
	_, err = r.LookupVendor(ctx, "10:34:56:00:00:01")
	var dbErr *DatabaseError
	assert.True(t, errors.As(err, &dbErr))

	_, err = r.LookupVendor(ctx, "nonsense")
	assert.ErrorIs(t, err, ErrInvalidMAC)
}

func TestVendorDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oui.db")
	db, err := OpenVendorDB(path)
	require.NoError(t, err)
	ctx := context.Background()

	updated := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.BulkInsert(ctx, []OUIEntry{
		{Prefix: "00-11-22", Vendor: "CIMSYS Inc", VendorShort: "CIMSYS", LastUpdated: updated},
		{Prefix: "a4:2b:b0", Vendor: "TP-LINK TECHNOLOGIES CO.,LTD.", LastUpdated: updated},
	}))

	v, err := db.Vendor(ctx, "00:11:22")
	require.NoError(t, err)
	assert.Equal(t, "CIMSYS", v)

	v, err = db.Vendor(ctx, "A4:2B:B0")
	require.NoError(t, err)
	assert.Equal(t, "TP-LINK TECHNOLOGIES CO.,LTD.", v, "falls back to the full name")

	_, err = db.Vendor(ctx, "FF:FF:FF")
	assert.ErrorIs(t, err, ErrVendorNotFound)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, "2026-01-10", stats.LastUpdated)

	assert.Error(t, db.BulkInsert(ctx, []OUIEntry{{Prefix: "bogus", Vendor: "x"}}))

	require.NoError(t, db.Close())
	_, err = db.Vendor(ctx, "00:11:22")
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.NoError(t, db.Close())
}

func TestResolver_OverVendorDB(t *testing.T) {
	db, err := OpenVendorDB(filepath.Join(t.TempDir(), "oui.db"))
	require.NoError(t, err)
	require.NoError(t, db.BulkInsert(context.Background(), []OUIEntry{{Prefix: "F0:9F:C2", Vendor: "Ubiquiti Inc", VendorShort: "Ubiquiti"}}))

	r := NewResolver(4, db, CommonVendors)
	defer r.Close()

	v, err := r.LookupVendor(context.Background(), "f0:9f:c2:aa:bb:cc")
	require.NoError(t, err)
	assert.Equal(t, "Ubiquiti", v)

	v, err = r.LookupVendor(context.Background(), "B8:27:EB:00:00:01")
	require.NoError(t, err)
	assert.Equal(t, "Raspberry Pi", v)
}
