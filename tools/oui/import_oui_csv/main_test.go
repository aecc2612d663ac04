package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lcalzada-xor/mids/internal/adapters/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportCSV(t *testing.T) {
	db, err := fingerprint.OpenVendorDB(filepath.Join(t.TempDir(), "oui.db"))
	require.NoError(t, err)
	defer db.Close()

	csvData := `Mac Prefix,Vendor Name,Private,Block Type,Last Update
A4:2B:B0,"TP-LINK TECHNOLOGIES CO.,LTD.",false,MA-L,2019/01/01
00-11-22,CIMSYS Inc,false,MA-L,2015/11/17
XX:YY:ZZ,Broken,false,MA-L,2015/11/17
F0:9F:C2,,false,MA-L,2015/11/17
`
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	imported, skipped, err := importCSV(context.Background(), db, strings.NewReader(csvData), now, false)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 2, skipped)

	v, err := db.Vendor(context.Background(), "00:11:22")
	require.NoError(t, err)
	assert.Equal(t, "CIMSYS", v)

	v, err = db.Vendor(context.Background(), "A4:2B:B0")
	require.NoError(t, err)
	assert.Equal(t, "TP-LINK TECHNOLOGIES CO.", v)
}

func TestShortVendor(t *testing.T) {
	assert.Equal(t, "Ubiquiti", shortVendor("Ubiquiti Inc"))
	assert.Equal(t, "Huawei Technologies", shortVendor("Huawei Technologies Co., Ltd."))
	assert.Equal(t, "AVM", shortVendor(" AVM GmbH "))
}
