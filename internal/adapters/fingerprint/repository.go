package fingerprint

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lcalzada-xor/mids/internal/core/ports"
)

// VendorSource resolves a normalized OUI prefix to a vendor name.
type VendorSource interface {
	Vendor(ctx context.Context, prefix string) (string, error)
	Close() error
}

// StaticVendors serves lookups from an in-memory map.
type StaticVendors map[string]string

// Vendor looks up a prefix in the map.
func (s StaticVendors) Vendor(_ context.Context, prefix string) (string, error) {
	if vendor, ok := s[strings.ToUpper(prefix)]; ok {
		return vendor, nil
	}
	return "", ErrVendorNotFound
}

// Close is a no-op for static sources
func (s StaticVendors) Close() error { return nil }

// CommonVendors are prefixes of vendors often seen on consumer and enterprise
// access points. Used when no registry file is configured.
var CommonVendors = StaticVendors{
	"00:11:22": "CIMSYS",
	"00:1A:11": "Google",
	"00:1B:63": "Apple",
	"00:50:F2": "Microsoft",
	"00:0C:42": "Routerboard",
	"00:18:0A": "Cisco Meraki",
	"00:24:A5": "Buffalo",
	"3C:84:6A": "TP-Link",
	"A4:2B:B0": "TP-Link",
	"B8:27:EB": "Raspberry Pi",
	"DC:A6:32": "Raspberry Pi",
	"F0:9F:C2": "Ubiquiti",
	"24:A4:3C": "Ubiquiti",
	"C8:3A:35": "Tenda",
	"E4:F4:C6": "Netgear",
	"00:1E:58": "D-Link",
	"70:4F:57": "TP-Link",
	"AC:84:C6": "TP-Link",
	"00:25:9C": "Cisco-Linksys",
	"2C:56:DC": "ASUSTek",
}

// Resolver chains vendor sources behind an LRU cache. It implements
// ports.VendorLookup.
type Resolver struct {
	sources []VendorSource
	cache   *lru.Cache[string, string]
	hits    atomic.Int64
	misses  atomic.Int64
}

var _ ports.VendorLookup = (*Resolver)(nil)

// NewResolver creates a resolver trying sources in order.
func NewResolver(cacheSize int, sources ...VendorSource) *Resolver {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, _ := lru.New[string, string](cacheSize)
	return &Resolver{sources: sources, cache: cache}
}

// LookupVendor returns the vendor of a hardware address or bare prefix.
func (r *Resolver) LookupVendor(ctx context.Context, mac string) (string, error) {
	prefix, err := ParsePrefix(mac)
	if err != nil {
		return "", err
	}
	if vendor, ok := r.cache.Get(prefix); ok {
		r.hits.Add(1)
		return vendor, nil
	}
	r.misses.Add(1)

	var lastErr error
	for _, src := range r.sources {
		vendor, err := src.Vendor(ctx, prefix)
		if err == nil && vendor != "" {
			r.cache.Add(prefix, vendor)
			return vendor, nil
		}
		if err != nil && !errors.Is(err, ErrVendorNotFound) {
			slog.Debug("vendor source failed", "prefix", prefix, "error", err)
			lastErr = err
		}
	}

	if IsLocallyAdministered(prefix) {
		return "", ErrLocallyAdministered
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrVendorNotFound
}

// CacheStats reports cache hits and misses since creation.
func (r *Resolver) CacheStats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

// Close closes every source and returns the first error.
func (r *Resolver) Close() error {
	var firstErr error
	for _, src := range r.sources {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.cache.Purge()
	return firstErr
}
