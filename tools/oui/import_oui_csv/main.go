// Command import_oui_csv loads a maclookup-style CSV export into the vendor
// registry read by the wireless identity enrichment.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/lcalzada-xor/mids/internal/adapters/fingerprint"
)

const batchSize = 1000

func main() {
	csvPath := flag.String("csv", "data/oui/maclookup.csv", "Path to CSV file")
	dbPath := flag.String("db", "data/oui/ieee_oui.db", "Path to vendor registry")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	log.Printf("Importing %s into %s", *csvPath, *dbPath)

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("Failed to open CSV: %v", err)
	}
	defer f.Close()

	db, err := fingerprint.OpenVendorDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open registry: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	imported, skipped, err := importCSV(ctx, db, f, time.Now().UTC(), *verbose)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		log.Fatalf("Failed to read stats: %v", err)
	}
	log.Printf("Imported %d entries (%d skipped), registry holds %d, last updated %s",
		imported, skipped, stats.TotalEntries, stats.LastUpdated)
}

// importCSV reads "Mac Prefix,Vendor Name,Private,Block Type,Last Update"
// rows and writes them in batches. Malformed rows are skipped.
func importCSV(ctx context.Context, db *fingerprint.VendorDB, r io.Reader, now time.Time, verbose bool) (imported, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil {
		return 0, 0, err
	}

	batch := make([]fingerprint.OUIEntry, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := db.BulkInsert(ctx, batch); err != nil {
			return err
		}
		imported += len(batch)
		if verbose {
			log.Printf("  %d entries written", imported)
		}
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil || len(record) < 2 {
			skipped++
			continue
		}

		vendor := strings.TrimSpace(record[1])
		prefix, perr := fingerprint.ParsePrefix(record[0])
		if perr != nil || vendor == "" {
			skipped++
			continue
		}

		batch = append(batch, fingerprint.OUIEntry{
			Prefix:      prefix,
			Vendor:      vendor,
			VendorShort: shortVendor(vendor),
			LastUpdated: now,
		})
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return imported, skipped, err
			}
		}
	}
	return imported, skipped, flush()
}

var vendorSuffixes = []string{
	" Co., Ltd.", " Inc.", " Inc", " Corporation", " Corp.", " Corp",
	" Ltd.", " Ltd", " Limited", " Co.", " LLC", " GmbH", " S.A.", " AG",
}

func shortVendor(vendor string) string {
	vendor = strings.TrimSpace(vendor)
	for _, suffix := range vendorSuffixes {
		vendor = strings.TrimSuffix(vendor, suffix)
	}
	if idx := strings.Index(vendor, ","); idx > 0 {
		vendor = vendor[:idx]
	}
	return strings.TrimSpace(vendor)
}
