package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "magicfleet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInsertDirectoryEntriesDedupes(t *testing.T) {
	store := testStore(t)

	entries := []DirectoryEntry{
		{Name: "Neptune Navigators", Country: "Malta", FleetSize: "42", URL: testTarget},
		{Name: "Acme Shipping", Country: "Greece", FleetSize: "7", URL: testBase + "/owners-managers/greece/acme-shipping"},
	}

	n, err := store.InsertDirectoryEntries(entries)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-crawling the same listing page must not duplicate rows.
	n, err = store.InsertDirectoryEntries(entries)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	pending, err := store.PendingCompanies(10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestPendingQueueOrderAndMarkProcessed(t *testing.T) {
	store := testStore(t)

	_, err := store.InsertDirectoryEntries([]DirectoryEntry{
		{Name: "First", Country: "Malta", URL: testBase + "/owners-managers/malta/first"},
		{Name: "Second", Country: "Malta", URL: testBase + "/owners-managers/malta/second"},
	})
	require.NoError(t, err)

	next, err := store.NextPendingCompany()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "First", next.Name)

	require.NoError(t, store.MarkProcessed(next.ID))

	next, err = store.NextPendingCompany()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "Second", next.Name)

	require.NoError(t, store.MarkProcessed(next.ID))

	next, err = store.NextPendingCompany()
	require.NoError(t, err)
	assert.Nil(t, next, "drained queue returns nil, not an error")
}

func TestSaveCompanyDetailsUpserts(t *testing.T) {
	store := testStore(t)

	_, err := store.InsertDirectoryEntries([]DirectoryEntry{
		{Name: "Neptune Navigators", Country: "Malta", URL: testTarget},
	})
	require.NoError(t, err)
	company, err := store.NextPendingCompany()
	require.NoError(t, err)

	info := &CompanyInfo{Name: "Neptune Navigators", Country: "Malta", TotalVessels: "42", TotalDWT: "1250000"}
	require.NoError(t, store.SaveCompanyDetails(company.ID, info))

	info.TotalVessels = "43"
	require.NoError(t, store.SaveCompanyDetails(company.ID, info))

	var count int
	var vessels string
	require.NoError(t, store.db.QueryRow(
		"SELECT COUNT(*), MAX(total_vessels) FROM company_details WHERE company_id = ?", company.ID).
		Scan(&count, &vessels))
	assert.Equal(t, 1, count, "one snapshot per company")
	assert.Equal(t, "43", vessels)
}

func TestSaveFleetReplacesRows(t *testing.T) {
	store := testStore(t)

	first := []FleetVessel{
		{"vessel_name": `<a href="/vessels/1">MV ALPHA</a>`, "vessel_imo": float64(9000001), "dwt": float64(45000)},
		{"vessel_name": "MV BETA", "vessel_imo": float64(9000002)},
	}
	require.NoError(t, store.SaveFleet(7, first))

	second := []FleetVessel{
		{"vessel_name": "MV GAMMA", "vessel_imo": float64(9000003)},
	}
	require.NoError(t, store.SaveFleet(7, second))

	rows, err := store.db.Query("SELECT vessel_name, vessel_imo FROM fleet_vessels WHERE company_id = 7")
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name, imo string
		require.NoError(t, rows.Scan(&name, &imo))
		names = append(names, name)
		assert.Equal(t, "9000003", imo)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"MV GAMMA"}, names, "a re-fetch replaces the previous fleet")
}

func TestSaveFleetKeepsRawJSON(t *testing.T) {
	store := testStore(t)

	vessels := []FleetVessel{
		{"vessel_name": "MV ALPHA", "vessel_imo": float64(9000001), "extra_column": "only in raw"},
	}
	require.NoError(t, store.SaveFleet(1, vessels))

	var raw string
	require.NoError(t, store.db.QueryRow(
		"SELECT raw FROM fleet_vessels WHERE company_id = 1").Scan(&raw))
	assert.Contains(t, raw, "extra_column")
}

func TestStringField(t *testing.T) {
	v := FleetVessel{
		"imo":  float64(9123456),
		"dwt":  float64(45000.5),
		"name": "MV TEST",
		"nil":  nil,
	}
	assert.Equal(t, "9123456", v.stringField("imo"), "integral floats print without decimal tail")
	assert.Equal(t, "45000.5", v.stringField("dwt"))
	assert.Equal(t, "MV TEST", v.stringField("name"))
	assert.Equal(t, "", v.stringField("nil"))
	assert.Equal(t, "", v.stringField("absent"))
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "MV ALPHA", stripTags(`<a href="/vessels/1"><b>MV ALPHA</b></a>`))
	assert.Equal(t, "plain name", stripTags("  plain name  "))
}
